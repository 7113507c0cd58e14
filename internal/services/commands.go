package services

import "strings"

// Command is the canonical name of a universal conversation command.
type Command string

const (
	CmdNone           Command = ""
	CmdCancel         Command = "CANCEL"
	CmdGoBack         Command = "GO_BACK"
	CmdRepeatMenu     Command = "REPEAT_MENU"
	CmdViewCart       Command = "VIEW_CART"
	CmdFinalizeOrder  Command = "FINALIZE_ORDER"
	CmdDetail         Command = "DETAIL"
	CmdChat           Command = "CHAT"
	CmdStopChatting   Command = "STOP_CHATTING"
	CmdShowCategories Command = "RETURN_TO_CATEGORIES"
	CmdShowCompanies  Command = "RETURN_TO_COMPANIES"
	CmdAddToCart      Command = "ADD_TO_CART"
	CmdHelp           Command = "HELP"
)

// commandSpec binds a command to the words users may type for it. Prefix
// commands additionally accept an argument after the mnemonic ("ver SKU1").
type commandSpec struct {
	cmd         Command
	mnemonics   []string
	prefix      bool
	description string
}

// commandTable is the single source of truth for command words. Spanish
// first since that is what most users type, English kept as aliases.
var commandTable = []commandSpec{
	{CmdFinalizeOrder, []string{"pedido", "finalizar", "order", "checkout"}, false, "finalizar la compra"},
	{CmdCancel, []string{"cancelar", "salir", "terminar", "fin", "cancel", "exit", "end"}, false, "cancelar y empezar de nuevo"},
	{CmdGoBack, []string{"atras", "atrás", "volver", "back"}, false, "volver al menú anterior"},
	{CmdRepeatMenu, []string{"menu", "menú", "repetir"}, false, "repetir el menú actual"},
	{CmdViewCart, []string{"carrito", "cart"}, false, "ver el carrito"},
	{CmdDetail, []string{"ver", "detalle", "detail", "info"}, true, "ver detalle de un producto (ej: ver SKU1)"},
	{CmdChat, []string{"chat", "hablar"}, false, "chatear con la empresa"},
	{CmdStopChatting, []string{"seguir", "stop", "nochat"}, false, "terminar el chat con la empresa"},
	{CmdShowCategories, []string{"categorias", "categorías", "categories"}, false, "ver las categorías"},
	{CmdShowCompanies, []string{"empresas", "tiendas", "companies"}, false, "ver las empresas"},
	{CmdAddToCart, []string{"agregar", "comprar", "add"}, false, "agregar el producto al carrito"},
	{CmdHelp, []string{"ayuda", "help"}, false, "ver esta ayuda"},
}

// Resolution is the outcome of resolving one raw input.
type Resolution struct {
	Command Command // CmdNone when the input is free text
	Arg     string  // remainder after a prefix mnemonic ("ver SKU1" -> "SKU1")
	Text    string  // trimmed input after numbered-option substitution
}

// Resolve turns raw input into a command or pass-through text. Resolution
// order: numbered-option substitution first (the substituted value is
// resolved again, but never re-substituted), then exact mnemonic match,
// else free text. Pure: reads numbered but never mutates anything.
func Resolve(numbered map[string]string, raw string) Resolution {
	return resolve(numbered, raw, false)
}

func resolve(numbered map[string]string, raw string, substituted bool) Resolution {
	text := strings.TrimSpace(raw)

	// Binding keys are numerals or lowercase shortcut letters, so the
	// lookup is on the lowered text.
	if !substituted {
		if value, ok := numbered[strings.ToLower(text)]; ok {
			return resolve(nil, value, true)
		}
	}

	lower := strings.ToLower(text)
	fields := strings.Fields(lower)
	if len(fields) == 0 {
		return Resolution{Text: text}
	}

	for _, spec := range commandTable {
		for _, mnemonic := range spec.mnemonics {
			if !spec.prefix {
				if lower == mnemonic {
					return Resolution{Command: spec.cmd, Text: text}
				}
				continue
			}
			if fields[0] == mnemonic && len(fields) > 1 {
				arg := strings.TrimSpace(text[len(fields[0]):])
				return Resolution{Command: spec.cmd, Arg: arg, Text: text}
			}
		}
	}

	return Resolution{Text: text}
}

// CommandHelp renders one line per command for the help message.
func CommandHelp() []string {
	lines := make([]string, 0, len(commandTable))
	for _, spec := range commandTable {
		lines = append(lines, "*"+spec.mnemonics[0]+"* - "+spec.description)
	}
	return lines
}
