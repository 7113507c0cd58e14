package services

import (
	"fmt"
	"strings"

	"github.com/vendibot/vendibot-backend/internal/models"
)

// Prompt builders. Every menu returns its text together with the
// numbered-option bindings for that render; the engine replaces the
// session's map with exactly these bindings so nothing leaks from a
// previous menu.

// browseFooter is appended under product listings. The single-letter
// shortcuts are bound as numbered options so "c" resolves to "carrito".
const browseFooter = `Escribe *SKU cantidad* para agregar (ej: SKU1 2)
*ver SKU* detalle | *c* carrito | *p* pedido | *a* atrás`

func footerBindings(opts map[string]string) map[string]string {
	opts["c"] = "carrito"
	opts["p"] = "pedido"
	opts["a"] = "atras"
	opts["m"] = "menu"
	return opts
}

// PromptChooseCompany greets a fresh session and asks for a merchant name
func PromptChooseCompany() string {
	return `¡Hola! 👋 Soy tu asistente de pedidos.

¿De cuál empresa quieres pedir? Escríbeme su nombre.

Escribe *empresas* para ver la lista completa.`
}

// MerchantMenu renders the merchant directory as a numbered menu
func MerchantMenu(merchants []*models.Merchant) (string, map[string]string) {
	if len(merchants) == 0 {
		return "😔 Todavía no hay empresas registradas. Vuelve pronto.", map[string]string{}
	}

	var sb strings.Builder
	sb.WriteString("🏪 *Empresas disponibles:*\n")
	opts := make(map[string]string)
	for i, m := range merchants {
		n := fmt.Sprintf("%d", i+1)
		sb.WriteString(fmt.Sprintf("\n*%s.* %s", n, m.Name))
		opts[n] = m.Name
	}
	sb.WriteString("\n\nResponde con el número o el nombre de la empresa.")
	return sb.String(), opts
}

// Greeting is the merchant welcome, configured per merchant with a default
func Greeting(merchant *models.Merchant) string {
	if merchant.Greeting != "" {
		return merchant.Greeting
	}
	return fmt.Sprintf("¡Bienvenido a *%s*! 🛍️", merchant.Name)
}

// CategoryMenu renders the category list as a numbered menu
func CategoryMenu(categories []string) (string, map[string]string) {
	var sb strings.Builder
	sb.WriteString("📂 *Categorías:*\n")
	opts := make(map[string]string)
	for i, c := range categories {
		n := fmt.Sprintf("%d", i+1)
		sb.WriteString(fmt.Sprintf("\n*%s.* %s", n, c))
		opts[n] = c
	}
	sb.WriteString("\n\nResponde con el número o el nombre de la categoría.")
	return sb.String(), opts
}

// numberedListLimit decides when a product list switches from numbered to
// SKU-keyed rendering. One digit keeps numeral replies unambiguous.
const numberedListLimit = 9

// ProductList renders in-stock products. Short lists are numbered (numeral
// bound to SKU); longer lists are SKU-keyed. Footer shortcuts are always
// bound.
func ProductList(products []*models.Product) (string, map[string]string) {
	opts := make(map[string]string)
	if len(products) == 0 {
		return "😔 No hay productos con stock en este momento.", footerBindings(opts)
	}

	var sb strings.Builder
	sb.WriteString("🛒 *Productos:*\n")
	numbered := len(products) <= numberedListLimit
	for i, p := range products {
		if numbered {
			n := fmt.Sprintf("%d", i+1)
			opts[n] = p.SKU
			sb.WriteString(fmt.Sprintf("\n*%s.* %s", n, productLine(p)))
		} else {
			sb.WriteString(fmt.Sprintf("\n▪️ %s", productLine(p)))
		}
	}
	sb.WriteString("\n\n")
	sb.WriteString(browseFooter)
	return sb.String(), footerBindings(opts)
}

func productLine(p *models.Product) string {
	if p.HasPresentations() {
		return fmt.Sprintf("%s (*%s*) - varias presentaciones", p.DisplayName(), p.SKU)
	}
	return fmt.Sprintf("%s (*%s*) - $%.2f", p.DisplayName(), p.SKU, p.Price)
}

// ProductDetail renders the detail view and binds numerals to the action
// words so "1" resolves to "agregar".
func ProductDetail(p *models.Product) (string, map[string]string) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📦 *%s*\n*SKU:* %s\n", p.DisplayName(), p.SKU))
	if p.LongName != "" && p.LongName != p.DisplayName() {
		sb.WriteString(fmt.Sprintf("%s\n", p.LongName))
	}
	for _, photo := range p.Photos {
		sb.WriteString(fmt.Sprintf("📷 %s\n", photo))
	}

	if p.HasPresentations() {
		sb.WriteString("\n*Presentaciones:*\n")
		for _, pres := range p.Presentations {
			sb.WriteString(fmt.Sprintf("▪️ %s - $%.2f (stock: %d)\n", pres.Name, pres.Price, pres.Stock))
		}
	} else {
		sb.WriteString(fmt.Sprintf("\n💰 *Precio:* $%.2f\n📊 *Stock:* %d\n", p.Price, p.Stock))
	}

	sb.WriteString(`
*1.* agregar al carrito
*2.* atrás
*3.* ver carrito`)

	opts := map[string]string{
		"1": "agregar",
		"2": "atras",
		"3": "carrito",
	}
	return sb.String(), opts
}

// DetailButtons are the quick replies attached to a product detail
func DetailButtons() []Button {
	return []Button{
		{ID: "agregar", Title: "Agregar"},
		{ID: "atras", Title: "Atrás"},
		{ID: "carrito", Title: "Carrito"},
	}
}

// PresentationMenu asks for a presentation + quantity, numerals bound to
// presentation names.
func PresentationMenu(p *models.PendingProduct) (string, map[string]string) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📦 *%s* viene en:\n", p.ShortName))
	opts := make(map[string]string)
	for i, pres := range p.Presentations {
		n := fmt.Sprintf("%d", i+1)
		opts[n] = pres.Name
		sb.WriteString(fmt.Sprintf("\n*%s.* %s - $%.2f (stock: %d)", n, pres.Name, pres.Price, pres.Stock))
	}
	sb.WriteString("\n\nResponde *presentación cantidad* (ej: ")
	sb.WriteString(fmt.Sprintf("*%s 2* o *1 2*).", p.Presentations[0].Name))
	return sb.String(), opts
}

// AskQuantity prompts for a bare quantity on a flat product
func AskQuantity(p *models.PendingProduct) string {
	return fmt.Sprintf("¿Cuántas unidades de *%s* quieres? Responde con un número. (stock: %d)",
		p.ShortName, p.Stock)
}

// AddedToCart confirms a cart merge, echoing what the line now holds
func AddedToCart(item models.CartItem, lineQty int) string {
	name := item.ShortName
	if item.Presentation != "" {
		name = fmt.Sprintf("%s %s", item.ShortName, item.Presentation)
	}
	return fmt.Sprintf("✅ Agregado: *%d × %s*. Llevas %d en el carrito.\n\nEscribe *pedido* para finalizar o sigue agregando.",
		item.Quantity, name, lineQty)
}

// InsufficientStock reports how much can actually be ordered
func InsufficientStock(available int) string {
	return fmt.Sprintf("❌ Stock insuficiente. Disponible: %d", available)
}

// CartView renders the cart with its snapshot prices and total
func CartView(session *models.Session) string {
	if len(session.Cart) == 0 {
		return "🛒 Tu carrito está vacío."
	}

	var sb strings.Builder
	sb.WriteString("🛒 *Tu carrito:*\n")
	for _, item := range session.Cart {
		name := item.ShortName
		if item.Presentation != "" {
			name = fmt.Sprintf("%s %s", item.ShortName, item.Presentation)
		}
		sb.WriteString(fmt.Sprintf("\n▪️ %d × %s - $%.2f", item.Quantity, name,
			float64(item.Quantity)*item.UnitPrice))
	}
	sb.WriteString(fmt.Sprintf("\n\n💰 *Total:* $%.2f", session.CartTotal()))
	sb.WriteString("\n\nEscribe *pedido* para finalizar o *menu* para seguir comprando.")
	return sb.String()
}

// EmptyCartCheckout rejects a finalize on an empty cart
func EmptyCartCheckout() string {
	return "🛒 Tu carrito está vacío, no hay nada que pedir. Agrega productos primero."
}

// CustomerDataPrompt asks for the labeled delivery block
func CustomerDataPrompt() string {
	return `📋 Para terminar tu pedido necesito tus datos de entrega.

Respóndeme así (una línea por dato):

*Nombre:* Juan Pérez
*Dirección:* Av. Siempre Viva 742
*Teléfono:* 5512345678`
}

// CustomerDataRetry re-prompts when the block could not be parsed
func CustomerDataRetry() string {
	return `😅 No pude leer tus datos. Necesito al menos tu *nombre* o tu *dirección*.

Respóndeme así:

*Nombre:* Juan Pérez
*Dirección:* Av. Siempre Viva 742
*Teléfono:* 5512345678`
}

// OrderClosing is the user-facing checkout message, merchant-configurable
func OrderClosing(merchant *models.Merchant, order *models.Order) string {
	closing := merchant.Closing
	if closing == "" {
		closing = fmt.Sprintf("¡Gracias por tu compra en *%s*! 🎉", merchant.Name)
	}
	return fmt.Sprintf(`%s

*Pedido:* %s
💰 *Total:* $%.2f

La empresa se pondrá en contacto contigo para la entrega.`,
		closing, order.OrderID, order.Total)
}

// relayRefMarker tags merchant-bound messages with the customer address so
// a quoted reply can be routed back.
const relayRefMarker = "ref:"

// RelayRef renders the hidden reference line
func RelayRef(customerAddress string) string {
	return fmt.Sprintf("🔖 %s %s", relayRefMarker, customerAddress)
}

// MerchantOrderNotice is the order notification sent to the merchant's own
// WhatsApp. It ends with the relay reference so the merchant can reply.
func MerchantOrderNotice(order *models.Order) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(`🔔 *¡Nuevo pedido!* %s

👤 *Cliente:* %s
📍 *Dirección:* %s
📞 *Teléfono:* %s

*Artículos:*`,
		order.OrderID, order.CustomerName, order.CustomerAddress, order.CustomerPhone))

	for _, item := range order.Items {
		name := item.ShortName
		if item.Presentation != "" {
			name = fmt.Sprintf("%s %s", item.ShortName, item.Presentation)
		}
		sb.WriteString(fmt.Sprintf("\n▪️ %d × %s - $%.2f", item.Quantity, name, item.LineTotal))
	}

	sb.WriteString(fmt.Sprintf("\n\n💰 *Total:* $%.2f", order.Total))
	sb.WriteString("\n\nResponde a este mensaje para chatear con el cliente.")
	sb.WriteString("\n" + RelayRef(order.ChatAddress))
	return sb.String()
}

// MerchantOrderReminder nudges a merchant about orders still waiting for
// confirmation.
func MerchantOrderReminder(orders []*models.Order) string {
	var sb strings.Builder
	sb.WriteString("⏳ *Pedidos sin confirmar:*")

	for _, order := range orders {
		sb.WriteString(fmt.Sprintf("\n▪️ %s - $%.2f (%s)",
			order.OrderID, order.Total, order.CustomerName))
	}

	sb.WriteString("\n\nConfírmalos desde tu panel para avisar a tus clientes.")
	return sb.String()
}

// ChatEntered confirms vendor-chat mode is on
func ChatEntered(merchant *models.Merchant) string {
	return fmt.Sprintf("💬 Estás chateando con *%s*. Todo lo que escribas se lo haré llegar.\n\nEscribe *seguir* para volver a tu pedido.",
		merchant.Name)
}

// ChatNoCompany explains chat needs an active merchant first
func ChatNoCompany() string {
	return "💬 Para chatear primero dime con cuál empresa. Escríbeme el nombre de la empresa."
}

// ChatExited confirms the overlay closed and the prior state is back
func ChatExited() string {
	return "👍 Listo, seguimos con tu pedido."
}

// ChatRelayToMerchant wraps a customer message for the merchant
func ChatRelayToMerchant(customerAddress, text string) string {
	return fmt.Sprintf(`💬 *Mensaje de cliente* (%s):

%s

Responde a este mensaje para contestarle.
%s`, customerAddress, text, RelayRef(customerAddress))
}

// ChatRelayToCustomer wraps a merchant reply for the customer
func ChatRelayToCustomer(merchantName, text string) string {
	return fmt.Sprintf("💬 *%s:* %s", merchantName, text)
}

// ResetConfirmation acknowledges an explicit cancel
func ResetConfirmation() string {
	return "🔄 Listo, cancelé todo. Empezamos de nuevo.\n\n" + PromptChooseCompany()
}

// NothingToGoBack is the normal reply when no previous menu exists
func NothingToGoBack() string {
	return "🤷 No hay un menú anterior aquí."
}

// UnknownCategory reports a failed category match
func UnknownCategory() string {
	return "❌ No encontré esa categoría."
}

// UnknownMerchant reports a failed merchant match
func UnknownMerchant(name string) string {
	return fmt.Sprintf("❌ No encontré la empresa *%s*.", name)
}

// UnknownSKU reports a failed product match
func UnknownSKU(sku string) string {
	return fmt.Sprintf("❌ No encontré el producto *%s*.", sku)
}

// InvalidQuantity reports a bad quantity token
func InvalidQuantity() string {
	return "❌ La cantidad debe ser un número entero mayor que cero. Ejemplo: *SKU1 2*"
}

// UnknownPresentation reports a failed presentation match
func UnknownPresentation(name string) string {
	return fmt.Sprintf("❌ No encontré la presentación *%s*.", name)
}

// UnknownAction nudges the user back to the detail options
func UnknownAction() string {
	return "🤔 No entendí. Responde *1* para agregar, *2* para volver o *3* para ver el carrito."
}

// NeedsPresentation redirects a bare-quantity attempt on a variant product
func NeedsPresentation(p *models.Product) string {
	return fmt.Sprintf("📦 *%s* viene en varias presentaciones. Escribe *ver %s* para elegir una.",
		p.DisplayName(), p.SKU)
}

// CorruptedSession explains a forced reset
func CorruptedSession() string {
	return "😵 Perdí el hilo de la conversación, así que empezamos de nuevo.\n\n" + PromptChooseCompany()
}

// GenericError is the apology for collaborator failures; session survives
func GenericError() string {
	return "😓 Algo salió mal de nuestro lado. Intenta de nuevo en un momento."
}

// InactivityWarning nudges an idle user
func InactivityWarning() string {
	return "⏰ ¿Sigues ahí? Tu sesión se cerrará pronto por inactividad."
}

// InactivityGoodbye announces the timeout reset
func InactivityGoodbye() string {
	return "👋 Cerré tu sesión por inactividad. Escríbeme cuando quieras hacer otro pedido."
}

// HelpMessage lists every command word
func HelpMessage() string {
	return "ℹ️ *Comandos:*\n\n" + strings.Join(CommandHelp(), "\n")
}
