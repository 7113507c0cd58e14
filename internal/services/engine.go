package services

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vendibot/vendibot-backend/internal/models"
	"github.com/vendibot/vendibot-backend/internal/storage"
)

// Engine is the conversation state machine. One inbound message is one
// turn: load the session, resolve the input, dispatch by state, send the
// replies in order, persist the session. Turns for the same user are
// serialized; different users run concurrently.
type Engine struct {
	store     storage.Store
	messenger Messenger
	orders    *OrderService
	relay     *RelayService
	idle      *InactivitySupervisor

	mu      sync.Mutex
	locks   map[string]*sync.Mutex
	inboxes map[string]chan InboundMessage
}

// NewEngine wires the conversation engine with its collaborators. relay and
// idle are optional; pass nil to disable vendor relay or inactivity
// handling (tests mostly do).
func NewEngine(store storage.Store, messenger Messenger, orders *OrderService, relay *RelayService, idle *InactivitySupervisor) *Engine {
	return &Engine{
		store:     store,
		messenger: messenger,
		orders:    orders,
		relay:     relay,
		idle:      idle,
		locks:     make(map[string]*sync.Mutex),
		inboxes:   make(map[string]chan InboundMessage),
	}
}

// Dispatch enqueues an inbound message on the sender's ordered queue and
// returns immediately. Messages from one user are processed one at a time
// in arrival order; different users run concurrently. The queue never
// blocks the caller: on overflow the message is dropped and logged.
func (e *Engine) Dispatch(msg InboundMessage) {
	userAddress := normalizeAddress(msg.From)
	if userAddress == "" {
		logrus.Warn("⚠️ Dropping inbound message without sender address")
		return
	}

	e.mu.Lock()
	ch, ok := e.inboxes[userAddress]
	if !ok {
		ch = make(chan InboundMessage, 64)
		e.inboxes[userAddress] = ch
		go func() {
			for m := range ch {
				e.HandleMessage(m)
			}
		}()
	}
	e.mu.Unlock()

	select {
	case ch <- msg:
	default:
		logrus.Warnf("⚠️ Inbox for %s full, dropping message", userAddress)
	}
}

// userLock returns the mutex serializing turns for one user address
func (e *Engine) userLock(userAddress string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()

	lock, ok := e.locks[userAddress]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[userAddress] = lock
	}
	return lock
}

// TurnLock exposes the per-user turn mutex so timer-driven resets can
// serialize with message handling.
func (e *Engine) TurnLock(userAddress string) sync.Locker {
	return e.userLock(userAddress)
}

// send delivers one user-facing message. Send failures are logged and
// swallowed: an undeliverable reply must not abort the turn.
func (e *Engine) send(session *models.Session, text string) {
	if err := e.messenger.SendText(session.ChannelID, session.UserAddress, text); err != nil {
		logrus.Errorf("❌ Send to %s failed: %v", session.UserAddress, err)
	}
}

func (e *Engine) sendButtons(session *models.Session, text string, buttons []Button) {
	if err := e.messenger.SendButtons(session.ChannelID, session.UserAddress, text, buttons); err != nil {
		logrus.Errorf("❌ Send to %s failed: %v", session.UserAddress, err)
	}
}

func normalizeAddress(addr string) string {
	return strings.TrimPrefix(strings.TrimSpace(addr), "whatsapp:")
}

// HandleMessage processes one inbound message to completion. This is the
// single error boundary: collaborator failures inside the turn are logged
// here and turned into one generic apology, with the session left intact.
func (e *Engine) HandleMessage(msg InboundMessage) {
	// Vendor replies are intercepted before any FSM processing
	if e.relay != nil && e.relay.TryHandle(msg) {
		return
	}

	userAddress := normalizeAddress(msg.From)
	if userAddress == "" {
		logrus.Warn("⚠️ Dropping inbound message without sender address")
		return
	}

	lock := e.userLock(userAddress)
	lock.Lock()
	defer lock.Unlock()

	session, err := e.store.FindOrCreateSession(userAddress, msg.ChannelID)
	if err != nil {
		logrus.Errorf("❌ Session load for %s failed: %v", userAddress, err)
		if err := e.messenger.SendText(msg.ChannelID, userAddress, GenericError()); err != nil {
			logrus.Errorf("❌ Send to %s failed: %v", userAddress, err)
		}
		return
	}

	if e.idle != nil {
		e.idle.Touch(userAddress, msg.ChannelID)
	}

	if msg.ChannelID != "" {
		session.ChannelID = msg.ChannelID
	}
	session.LastActivity = time.Now()

	if err := e.processTurn(session, msg.Text); err != nil {
		logrus.WithFields(logrus.Fields{
			"user":    userAddress,
			"channel": session.ChannelID,
			"text":    msg.Text,
		}).Errorf("❌ Turn failed: %v", err)
		e.send(session, GenericError())
	}

	if err := e.store.SaveSession(session); err != nil {
		logrus.Errorf("❌ Session save for %s failed: %v", userAddress, err)
	}
}

// processTurn resolves the input and dispatches it. Returned errors are
// collaborator failures only; user input problems are answered in place.
func (e *Engine) processTurn(session *models.Session, text string) error {
	if !session.ValidState() {
		logrus.Warnf("⚠️ Session %s had unknown state %q, forcing reset", session.UserAddress, session.State)
		session.Reset()
		e.send(session, CorruptedSession())
		return nil
	}

	// Chat overlay: everything except the exit commands relays verbatim.
	// Numbered options are stale leftovers from pre-chat menus here, so
	// they take no part in resolution.
	if session.State == models.StateChatting {
		return e.handleChatting(session, text)
	}

	res := Resolve(session.NumberedOptions, text)

	if handled, err := e.handleUniversal(session, res); handled || err != nil {
		return err
	}

	switch session.State {
	case models.StateSelectingCompany:
		return e.handleSelectingCompany(session, res.Text)
	case models.StateSelectingCategory:
		return e.handleSelectingCategory(session, res.Text)
	case models.StateBrowsingProducts:
		return e.handleBrowsing(session, res)
	case models.StateAwaitingProductAction:
		return e.handleProductAction(session, res)
	case models.StateAwaitingQuantity:
		return e.handleQuantity(session, res.Text)
	case models.StateAwaitingCustomerData:
		return e.handleCustomerData(session, res.Text)
	}
	return nil
}

// handleUniversal covers the commands valid from any state. Returns true
// when the turn is fully answered.
func (e *Engine) handleUniversal(session *models.Session, res Resolution) (bool, error) {
	switch res.Command {
	case CmdCancel:
		session.Reset()
		e.send(session, ResetConfirmation())
		return true, nil

	case CmdRepeatMenu:
		return true, e.renderState(session)

	case CmdGoBack:
		return true, e.goBack(session)

	case CmdViewCart:
		// pendingProduct survives so a detail flow can continue afterwards
		e.send(session, CartView(session))
		return true, nil

	case CmdFinalizeOrder:
		return true, e.startCheckout(session)

	case CmdShowCompanies:
		merchants, err := e.store.GetActiveMerchants()
		if err != nil {
			return true, err
		}
		session.State = models.StateSelectingCompany
		menu, opts := MerchantMenu(merchants)
		session.BindOptions(opts)
		e.send(session, menu)
		return true, nil

	case CmdShowCategories:
		if !session.HasCompany() {
			e.send(session, PromptChooseCompany())
			session.State = models.StateSelectingCompany
			return true, nil
		}
		return true, e.showCategories(session)

	case CmdDetail:
		if !session.HasCompany() {
			e.send(session, PromptChooseCompany())
			return true, nil
		}
		return true, e.showProductDetail(session, res.Arg)

	case CmdChat:
		return true, e.enterChat(session)

	case CmdHelp:
		e.send(session, HelpMessage())
		return true, nil

	case CmdStopChatting:
		// Not in chat mode; treat as a no-op answer rather than an error
		e.send(session, ChatExited())
		return true, nil
	}

	return false, nil
}

// renderState re-sends the current state's primary prompt, rebinding its
// numbered options. Cart and company are never touched here.
func (e *Engine) renderState(session *models.Session) error {
	switch session.State {
	case models.StateSelectingCompany:
		merchants, err := e.store.GetActiveMerchants()
		if err != nil {
			return err
		}
		menu, opts := MerchantMenu(merchants)
		session.BindOptions(opts)
		e.send(session, menu)

	case models.StateSelectingCategory:
		menu, opts := CategoryMenu(session.AvailableCategories)
		session.BindOptions(opts)
		e.send(session, menu)

	case models.StateBrowsingProducts:
		return e.showProducts(session)

	case models.StateAwaitingProductAction:
		if session.PendingProduct == nil {
			return e.corrupted(session)
		}
		product, err := e.lookupProduct(session, session.PendingProduct.SKU)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return e.corrupted(session)
			}
			return err
		}
		detail, opts := ProductDetail(product)
		session.BindOptions(opts)
		e.sendButtons(session, detail, DetailButtons())

	case models.StateAwaitingQuantity:
		if session.PendingProduct == nil {
			return e.corrupted(session)
		}
		if session.PendingProduct.HasPresentations() {
			menu, opts := PresentationMenu(session.PendingProduct)
			session.BindOptions(opts)
			e.send(session, menu)
		} else {
			session.BindOptions(nil)
			e.send(session, AskQuantity(session.PendingProduct))
		}

	case models.StateAwaitingCustomerData:
		e.send(session, CustomerDataPrompt())
	}
	return nil
}

// goBack moves to the state-specific previous menu. States without one get
// a normal "nothing to go back to" answer.
func (e *Engine) goBack(session *models.Session) error {
	switch session.State {
	case models.StateSelectingCategory:
		session.State = models.StateSelectingCompany
		session.BindOptions(nil)
		return e.renderState(session)

	case models.StateBrowsingProducts:
		if len(session.AvailableCategories) == 0 {
			// merchant without categories: the catalog is the top menu
			return e.showProducts(session)
		}
		session.State = models.StateSelectingCategory
		return e.renderState(session)

	case models.StateAwaitingProductAction:
		session.ClearPending()
		session.State = models.StateBrowsingProducts
		return e.showProducts(session)

	case models.StateAwaitingQuantity:
		session.PendingOrder = nil
		session.State = models.StateAwaitingProductAction
		return e.renderState(session)

	case models.StateAwaitingCustomerData:
		session.State = models.StateBrowsingProducts
		return e.showProducts(session)
	}

	e.send(session, NothingToGoBack())
	return nil
}

// corrupted recovers from a session whose expected context is missing
func (e *Engine) corrupted(session *models.Session) error {
	logrus.Warnf("⚠️ Session %s missing expected context in state %s, forcing reset",
		session.UserAddress, session.State)
	session.Reset()
	e.send(session, CorruptedSession())
	return nil
}

// handleSelectingCompany matches input against the merchant directory
func (e *Engine) handleSelectingCompany(session *models.Session, text string) error {
	if strings.TrimSpace(text) == "" {
		e.send(session, PromptChooseCompany())
		return nil
	}

	merchant, err := e.store.GetMerchantByName(text)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		merchants, err := e.store.GetActiveMerchants()
		if err != nil {
			return err
		}
		menu, opts := MerchantMenu(merchants)
		session.BindOptions(opts)
		if len(merchants) == 0 {
			e.send(session, menu)
			return nil
		}
		e.send(session, UnknownMerchant(text)+"\n\n"+menu)
		return nil
	}

	// Fresh company context: whatever was scoped to a previous merchant
	// (cart, categories, pending selections) is gone.
	session.Company = &models.CompanyContext{
		MerchantID: merchant.MerchantID,
		Code:       merchant.Code,
		Name:       merchant.Name,
	}
	session.Cart = nil
	session.AvailableCategories = nil
	session.ClearPending()

	e.send(session, Greeting(merchant))

	categories, err := e.store.GetCategories(merchant.MerchantID)
	if err != nil {
		return err
	}
	if len(categories) > 0 {
		session.AvailableCategories = categories
		session.State = models.StateSelectingCategory
		menu, opts := CategoryMenu(categories)
		session.BindOptions(opts)
		e.send(session, menu)
		return nil
	}

	session.State = models.StateBrowsingProducts
	return e.showProducts(session)
}

// handleSelectingCategory matches input against the bound category list
func (e *Engine) handleSelectingCategory(session *models.Session, text string) error {
	var matched string
	for _, c := range session.AvailableCategories {
		if strings.EqualFold(c, strings.TrimSpace(text)) {
			matched = c
			break
		}
	}

	if matched == "" {
		menu, opts := CategoryMenu(session.AvailableCategories)
		session.BindOptions(opts)
		e.send(session, UnknownCategory()+"\n\n"+menu)
		return nil
	}

	session.State = models.StateBrowsingProducts
	return e.showProductsIn(session, matched)
}

// showCategories re-enters category selection for the active company
func (e *Engine) showCategories(session *models.Session) error {
	categories, err := e.store.GetCategories(session.Company.MerchantID)
	if err != nil {
		return err
	}
	if len(categories) == 0 {
		session.State = models.StateBrowsingProducts
		return e.showProducts(session)
	}
	session.AvailableCategories = categories
	session.State = models.StateSelectingCategory
	menu, opts := CategoryMenu(categories)
	session.BindOptions(opts)
	e.send(session, menu)
	return nil
}

// enterChat switches on the vendor-chat overlay
func (e *Engine) enterChat(session *models.Session) error {
	if !session.HasCompany() {
		e.send(session, ChatNoCompany())
		return nil
	}
	merchant, err := e.store.GetMerchant(session.Company.MerchantID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return e.corrupted(session)
		}
		return err
	}
	session.PreviousState = session.State
	session.State = models.StateChatting
	e.send(session, ChatEntered(merchant))
	return nil
}

// handleChatting relays everything except the exit commands to the merchant
func (e *Engine) handleChatting(session *models.Session, text string) error {
	switch res := Resolve(nil, text); res.Command {
	case CmdStopChatting:
		session.State = session.PreviousState
		if session.State == "" || !session.ValidState() {
			session.State = models.StateSelectingCompany
		}
		session.PreviousState = ""
		e.send(session, ChatExited())
		return e.renderState(session)

	case CmdCancel:
		session.Reset()
		e.send(session, ResetConfirmation())
		return nil
	}

	if !session.HasCompany() {
		return e.corrupted(session)
	}
	merchant, err := e.store.GetMerchant(session.Company.MerchantID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return e.corrupted(session)
		}
		return err
	}

	// Relay failures are logged only; the customer keeps chatting
	relayed := ChatRelayToMerchant(session.UserAddress, strings.TrimSpace(text))
	if err := e.messenger.SendText(session.ChannelID, merchant.WhatsApp, relayed); err != nil {
		logrus.Errorf("❌ Chat relay to merchant %s failed: %v", merchant.MerchantID, err)
	}
	return nil
}
