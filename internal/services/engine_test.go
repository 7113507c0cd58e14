package services

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vendibot/vendibot-backend/internal/models"
	"github.com/vendibot/vendibot-backend/internal/storage"
)

// sentMessage records one outbound message for assertions
type sentMessage struct {
	ChannelID string
	To        string
	Text      string
	Buttons   []Button
}

// fakeMessenger records every send; addresses in failTo make sends fail
type fakeMessenger struct {
	mu     sync.Mutex
	sent   []sentMessage
	failTo map[string]bool
}

func (f *fakeMessenger) SendText(channelID, to, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTo[to] {
		return fmt.Errorf("send to %s failed", to)
	}
	f.sent = append(f.sent, sentMessage{ChannelID: channelID, To: to, Text: text})
	return nil
}

func (f *fakeMessenger) SendButtons(channelID, to, text string, buttons []Button) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTo[to] {
		return fmt.Errorf("send to %s failed", to)
	}
	f.sent = append(f.sent, sentMessage{ChannelID: channelID, To: to, Text: text, Buttons: buttons})
	return nil
}

func (f *fakeMessenger) all() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sentMessage, len(f.sent))
	copy(out, f.sent)
	return out
}

func (f *fakeMessenger) textsTo(addr string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, m := range f.sent {
		if m.To == addr {
			out = append(out, m.Text)
		}
	}
	return out
}

func (f *fakeMessenger) lastTo(t *testing.T, addr string) string {
	t.Helper()
	texts := f.textsTo(addr)
	require.NotEmpty(t, texts, "no messages sent to %s", addr)
	return texts[len(texts)-1]
}

func (f *fakeMessenger) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = nil
}

const testUser = "+5215550001111"

// fixture wires an engine against the in-memory store and the recording
// messenger.
type fixture struct {
	store  *storage.MemoryStore
	msgr   *fakeMessenger
	engine *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := storage.NewMemoryStore()
	msgr := &fakeMessenger{failTo: make(map[string]bool)}
	orders := NewOrderService(store, msgr)
	relay := NewRelayService(store, msgr)
	engine := NewEngine(store, msgr, orders, relay, nil)
	return &fixture{store: store, msgr: msgr, engine: engine}
}

func (f *fixture) seedMerchant(t *testing.T, code, name, whatsapp string) *models.Merchant {
	t.Helper()
	merchant, err := f.store.CreateMerchant(&models.MerchantRegistration{
		Code:     code,
		Name:     name,
		WhatsApp: whatsapp,
	})
	require.NoError(t, err)
	return merchant
}

func (f *fixture) seedProduct(t *testing.T, product *models.Product) *models.Product {
	t.Helper()
	created, err := f.store.CreateProduct(product)
	require.NoError(t, err)
	return created
}

func (f *fixture) say(text string) {
	f.engine.HandleMessage(InboundMessage{From: testUser, Text: text})
}

func (f *fixture) session(t *testing.T) *models.Session {
	t.Helper()
	session, err := f.store.GetSession(testUser)
	require.NoError(t, err)
	return session
}

// seedAcme is the default one-merchant flat-catalog setup
func (f *fixture) seedAcme(t *testing.T) *models.Merchant {
	t.Helper()
	merchant := f.seedMerchant(t, "ACME", "Acme", "+5215550009999")
	f.seedProduct(t, &models.Product{
		MerchantID: merchant.MerchantID,
		SKU:        "SKU1",
		ShortName:  "Cafe de olla",
		Price:      10,
		Stock:      5,
	})
	return merchant
}

func TestEngine_FirstContactAsksForCompany(t *testing.T) {
	f := newFixture(t)
	f.seedAcme(t)

	f.say("hola")

	// unknown text in the initial state answers with the directory
	last := f.msgr.lastTo(t, testUser)
	assert.Contains(t, last, "No encontré la empresa *hola*")
	assert.Contains(t, last, "*1.* Acme")
	assert.Equal(t, models.StateSelectingCompany, f.session(t).State)
}

func TestEngine_EmptyDirectory(t *testing.T) {
	f := newFixture(t)

	f.say("hola")

	assert.Equal(t, "😔 Todavía no hay empresas registradas. Vuelve pronto.", f.msgr.lastTo(t, testUser))
}

func TestEngine_SelectMerchantByName(t *testing.T) {
	f := newFixture(t)
	f.seedAcme(t)

	f.say("acme")

	texts := f.msgr.textsTo(testUser)
	require.Len(t, texts, 2)
	assert.Contains(t, texts[0], "Bienvenido a *Acme*")
	assert.Contains(t, texts[1], "Cafe de olla (*SKU1*) - $10.00")
	assert.Equal(t, models.StateBrowsingProducts, f.session(t).State)
}

func TestEngine_SelectMerchantByCode(t *testing.T) {
	f := newFixture(t)
	f.seedAcme(t)

	f.say("ACME")

	assert.Equal(t, models.StateBrowsingProducts, f.session(t).State)
	require.NotNil(t, f.session(t).Company)
	assert.Equal(t, "Acme", f.session(t).Company.Name)
}

func TestEngine_SelectMerchantByNumber(t *testing.T) {
	f := newFixture(t)
	f.seedAcme(t)

	f.say("empresas") // binds "1" -> Acme
	f.msgr.reset()
	f.say("1")

	assert.Contains(t, f.msgr.textsTo(testUser)[0], "Bienvenido a *Acme*")
	assert.Equal(t, models.StateBrowsingProducts, f.session(t).State)
}

func TestEngine_MerchantWithCategories(t *testing.T) {
	f := newFixture(t)
	merchant := f.seedMerchant(t, "ACME", "Acme", "+5215550009999")
	f.seedProduct(t, &models.Product{
		MerchantID: merchant.MerchantID, SKU: "SKU1", ShortName: "Cafe", Price: 10, Stock: 5, Category: "Bebidas",
	})
	f.seedProduct(t, &models.Product{
		MerchantID: merchant.MerchantID, SKU: "SKU2", ShortName: "Pan", Price: 8, Stock: 3, Category: "Panadería",
	})

	f.say("acme")

	session := f.session(t)
	assert.Equal(t, models.StateSelectingCategory, session.State)
	assert.Equal(t, []string{"Bebidas", "Panadería"}, session.AvailableCategories)
	assert.Contains(t, f.msgr.lastTo(t, testUser), "*Categorías:*")

	// numeral picks the bound category
	f.msgr.reset()
	f.say("1")

	assert.Equal(t, models.StateBrowsingProducts, f.session(t).State)
	last := f.msgr.lastTo(t, testUser)
	assert.Contains(t, last, "Cafe (*SKU1*)")
	assert.NotContains(t, last, "SKU2")
}

func TestEngine_UnknownCategoryRepeatsMenu(t *testing.T) {
	f := newFixture(t)
	merchant := f.seedMerchant(t, "ACME", "Acme", "+5215550009999")
	f.seedProduct(t, &models.Product{
		MerchantID: merchant.MerchantID, SKU: "SKU1", ShortName: "Cafe", Price: 10, Stock: 5, Category: "Bebidas",
	})

	f.say("acme")
	f.msgr.reset()
	f.say("juguetes")

	last := f.msgr.lastTo(t, testUser)
	assert.Contains(t, last, "No encontré esa categoría")
	assert.Contains(t, last, "*1.* Bebidas")
	assert.Equal(t, models.StateSelectingCategory, f.session(t).State)
}

func TestEngine_SwitchingCompanyDropsScopedState(t *testing.T) {
	f := newFixture(t)
	f.seedAcme(t)
	other := f.seedMerchant(t, "BETA", "Beta", "+5215550008888")
	f.seedProduct(t, &models.Product{
		MerchantID: other.MerchantID, SKU: "B1", ShortName: "Birria", Price: 120, Stock: 2,
	})

	f.say("acme")
	f.say("SKU1 2")
	require.Len(t, f.session(t).Cart, 1)

	f.say("empresas")
	f.say("beta")

	session := f.session(t)
	assert.Equal(t, "Beta", session.Company.Name)
	assert.Empty(t, session.Cart, "cart is merchant-scoped and must not survive a switch")
}

func TestEngine_AddToCartFlat(t *testing.T) {
	f := newFixture(t)
	f.seedAcme(t)
	f.say("acme")
	f.msgr.reset()

	f.say("SKU1 2")

	last := f.msgr.lastTo(t, testUser)
	assert.Contains(t, last, "✅ Agregado: *2 × Cafe de olla*")
	assert.Contains(t, last, "Llevas 2 en el carrito")

	session := f.session(t)
	require.Len(t, session.Cart, 1)
	assert.Equal(t, "SKU1", session.Cart[0].SKU)
	assert.Equal(t, 2, session.Cart[0].Quantity)
	assert.Equal(t, 10.0, session.Cart[0].UnitPrice)
	assert.Equal(t, models.StateBrowsingProducts, session.State)
}

func TestEngine_AddToCartLowercaseSKU(t *testing.T) {
	f := newFixture(t)
	f.seedAcme(t)
	f.say("acme")

	f.say("sku1 3")

	require.Len(t, f.session(t).Cart, 1)
	assert.Equal(t, "SKU1", f.session(t).Cart[0].SKU)
}

func TestEngine_AddToCartByListNumber(t *testing.T) {
	f := newFixture(t)
	f.seedAcme(t)
	f.say("acme") // product list binds "1" -> SKU1

	f.say("1 4")

	require.Len(t, f.session(t).Cart, 1)
	assert.Equal(t, "SKU1", f.session(t).Cart[0].SKU)
	assert.Equal(t, 4, f.session(t).Cart[0].Quantity)
}

func TestEngine_CartMergesSameLine(t *testing.T) {
	f := newFixture(t)
	f.seedAcme(t)
	f.say("acme")

	f.say("SKU1 2")
	f.msgr.reset()
	f.say("SKU1 3")

	assert.Contains(t, f.msgr.lastTo(t, testUser), "Llevas 5 en el carrito")
	session := f.session(t)
	require.Len(t, session.Cart, 1)
	assert.Equal(t, 5, session.Cart[0].Quantity)
}

func TestEngine_InsufficientStockOnBrowse(t *testing.T) {
	f := newFixture(t)
	f.seedAcme(t)
	f.say("acme")
	f.msgr.reset()

	f.say("SKU1 99")

	assert.Equal(t, "❌ Stock insuficiente. Disponible: 5", f.msgr.lastTo(t, testUser))
	assert.Empty(t, f.session(t).Cart)
}

func TestEngine_UnknownSKU(t *testing.T) {
	f := newFixture(t)
	f.seedAcme(t)
	f.say("acme")
	f.msgr.reset()

	f.say("NOPE 2")

	assert.Contains(t, f.msgr.lastTo(t, testUser), "No encontré el producto *NOPE*")
}

func TestEngine_InvalidQuantityTokens(t *testing.T) {
	f := newFixture(t)
	f.seedAcme(t)
	f.say("acme")

	for _, input := range []string{"SKU1 cero", "SKU1 -1", "SKU1 0", "algo"} {
		f.msgr.reset()
		f.say(input)
		assert.Contains(t, f.msgr.lastTo(t, testUser), "La cantidad debe ser un número entero", "input %q", input)
	}
	assert.Empty(t, f.session(t).Cart)
}

func TestEngine_DetailFlowFlatProduct(t *testing.T) {
	f := newFixture(t)
	f.seedAcme(t)
	f.say("acme")
	f.msgr.reset()

	f.say("ver SKU1")

	detail := f.msgr.all()[0]
	assert.Contains(t, detail.Text, "📦 *Cafe de olla*")
	assert.Contains(t, detail.Text, "*SKU:* SKU1")
	assert.Contains(t, detail.Text, "*Stock:* 5")
	require.Len(t, detail.Buttons, 3)

	session := f.session(t)
	assert.Equal(t, models.StateAwaitingProductAction, session.State)
	require.NotNil(t, session.PendingProduct)
	assert.Equal(t, "SKU1", session.PendingProduct.SKU)

	// "1" is bound to agregar on the detail view
	f.msgr.reset()
	f.say("1")

	assert.Contains(t, f.msgr.lastTo(t, testUser), "¿Cuántas unidades de *Cafe de olla*")
	assert.Equal(t, models.StateAwaitingQuantity, f.session(t).State)

	// the quantity prompt cleared the detail bindings, so a numeral is a
	// quantity now, not a menu choice
	f.msgr.reset()
	f.say("1")

	session = f.session(t)
	require.Len(t, session.Cart, 1)
	assert.Equal(t, 1, session.Cart[0].Quantity)
	assert.Equal(t, models.StateBrowsingProducts, session.State)
}

func TestEngine_DetailByListNumber(t *testing.T) {
	f := newFixture(t)
	f.seedAcme(t)
	f.say("acme") // list binds "1" -> SKU1
	f.msgr.reset()

	f.say("ver 1")

	assert.Equal(t, models.StateAwaitingProductAction, f.session(t).State)
	assert.Equal(t, "SKU1", f.session(t).PendingProduct.SKU)
}

func TestEngine_DetailUnknownAction(t *testing.T) {
	f := newFixture(t)
	f.seedAcme(t)
	f.say("acme")
	f.say("ver SKU1")
	f.msgr.reset()

	f.say("qué onda")

	assert.Contains(t, f.msgr.lastTo(t, testUser), "Responde *1* para agregar")
	assert.Equal(t, models.StateAwaitingProductAction, f.session(t).State)
}

func TestEngine_QuantityRejectsExtraTokens(t *testing.T) {
	f := newFixture(t)
	f.seedAcme(t)
	f.say("acme")
	f.say("ver SKU1")
	f.say("agregar")
	f.msgr.reset()

	f.say("2 por favor")

	assert.Contains(t, f.msgr.lastTo(t, testUser), "La cantidad debe ser un número entero")
	assert.Equal(t, models.StateAwaitingQuantity, f.session(t).State)
}

func TestEngine_QuantityReChecksLiveStock(t *testing.T) {
	f := newFixture(t)
	merchant := f.seedAcme(t)
	f.say("acme")
	f.say("ver SKU1") // snapshot stock 5
	f.say("agregar")

	// stock drops while the user decides
	product, err := f.store.GetProduct(merchant.MerchantID, "SKU1")
	require.NoError(t, err)
	product.Stock = 1
	f.msgr.reset()

	f.say("3")

	assert.Equal(t, "❌ Stock insuficiente. Disponible: 1", f.msgr.lastTo(t, testUser))
	assert.Empty(t, f.session(t).Cart)
}

func seedVariantCatalog(t *testing.T, f *fixture) *models.Merchant {
	t.Helper()
	merchant := f.seedMerchant(t, "ACME", "Acme", "+5215550009999")
	f.seedProduct(t, &models.Product{
		MerchantID: merchant.MerchantID,
		SKU:        "SKU2",
		ShortName:  "Tortillas",
		Presentations: []models.Presentation{
			{Name: "Chica", Price: 50, Stock: 10},
			{Name: "Grande", Price: 90, Stock: 4},
		},
	})
	return merchant
}

func TestEngine_VariantBareQuantityRedirects(t *testing.T) {
	f := newFixture(t)
	seedVariantCatalog(t, f)
	f.say("acme")
	f.msgr.reset()

	f.say("SKU2 3")

	texts := f.msgr.textsTo(testUser)
	require.Len(t, texts, 2)
	assert.Contains(t, texts[0], "viene en varias presentaciones")
	assert.Contains(t, texts[1], "📦 *Tortillas*")

	session := f.session(t)
	assert.Equal(t, models.StateAwaitingProductAction, session.State)
	require.NotNil(t, session.PendingOrder)
	assert.Equal(t, 3, session.PendingOrder.Quantity)

	// pick agregar, then a presentation by name; the remembered quantity
	// fills in
	f.say("agregar")
	assert.Contains(t, f.msgr.lastTo(t, testUser), "*Tortillas* viene en:")
	f.msgr.reset()
	f.say("chica")

	session = f.session(t)
	require.Len(t, session.Cart, 1)
	assert.Equal(t, "Chica", session.Cart[0].Presentation)
	assert.Equal(t, 3, session.Cart[0].Quantity)
	assert.Equal(t, 50.0, session.Cart[0].UnitPrice)
	assert.Nil(t, session.PendingOrder)
}

func TestEngine_VariantDirectPresentationOrder(t *testing.T) {
	f := newFixture(t)
	seedVariantCatalog(t, f)
	f.say("acme")
	f.msgr.reset()

	f.say("SKU2 Grande 2")

	session := f.session(t)
	require.Len(t, session.Cart, 1)
	assert.Equal(t, "Grande", session.Cart[0].Presentation)
	assert.Equal(t, 2, session.Cart[0].Quantity)
	assert.Equal(t, 90.0, session.Cart[0].UnitPrice)
}

func TestEngine_VariantNumberedPresentationWithQuantity(t *testing.T) {
	f := newFixture(t)
	seedVariantCatalog(t, f)
	f.say("acme")
	f.say("ver SKU2")
	f.say("agregar") // presentation menu binds "1" -> Chica, "2" -> Grande

	f.say("2 4")

	session := f.session(t)
	require.Len(t, session.Cart, 1)
	assert.Equal(t, "Grande", session.Cart[0].Presentation)
	assert.Equal(t, 4, session.Cart[0].Quantity)
}

func TestEngine_VariantNumeralAloneIsPresentationPick(t *testing.T) {
	f := newFixture(t)
	seedVariantCatalog(t, f)
	f.say("acme")
	f.say("SKU2 2") // remembers quantity 2
	f.say("agregar")
	f.msgr.reset()

	// "1" substitutes to the bound presentation name, so the remembered
	// quantity completes the order
	f.say("1")

	session := f.session(t)
	require.Len(t, session.Cart, 1)
	assert.Equal(t, "Chica", session.Cart[0].Presentation)
	assert.Equal(t, 2, session.Cart[0].Quantity)
}

func TestEngine_VariantUnknownPresentationRepeatsMenu(t *testing.T) {
	f := newFixture(t)
	seedVariantCatalog(t, f)
	f.say("acme")
	f.say("ver SKU2")
	f.say("agregar")
	f.msgr.reset()

	f.say("Mediana 2")

	last := f.msgr.lastTo(t, testUser)
	assert.Contains(t, last, "No encontré la presentación *Mediana*")
	assert.Contains(t, last, "*Tortillas* viene en:")
	assert.Equal(t, models.StateAwaitingQuantity, f.session(t).State)
}

func TestEngine_VariantInsufficientPresentationStock(t *testing.T) {
	f := newFixture(t)
	seedVariantCatalog(t, f)
	f.say("acme")
	f.msgr.reset()

	f.say("SKU2 Grande 9")

	assert.Equal(t, "❌ Stock insuficiente. Disponible: 4", f.msgr.lastTo(t, testUser))
	assert.Empty(t, f.session(t).Cart)
}

func TestEngine_ViewCartKeepsPendingSelection(t *testing.T) {
	f := newFixture(t)
	f.seedAcme(t)
	f.say("acme")
	f.say("SKU1 2")
	f.say("ver SKU1")
	f.msgr.reset()

	f.say("carrito")

	last := f.msgr.lastTo(t, testUser)
	assert.Contains(t, last, "🛒 *Tu carrito:*")
	assert.Contains(t, last, "2 × Cafe de olla - $20.00")
	assert.Contains(t, last, "*Total:* $20.00")

	// the interrupted detail flow can continue
	session := f.session(t)
	assert.Equal(t, models.StateAwaitingProductAction, session.State)
	require.NotNil(t, session.PendingProduct)
}

func TestEngine_EmptyCartView(t *testing.T) {
	f := newFixture(t)
	f.seedAcme(t)
	f.say("acme")
	f.msgr.reset()

	f.say("carrito")

	assert.Equal(t, "🛒 Tu carrito está vacío.", f.msgr.lastTo(t, testUser))
}

func TestEngine_FooterShortcutLetters(t *testing.T) {
	f := newFixture(t)
	f.seedAcme(t)
	f.say("acme")
	f.say("SKU1 1")
	f.msgr.reset()

	// "C" resolves through the footer binding even uppercased
	f.say("C")

	assert.Contains(t, f.msgr.lastTo(t, testUser), "🛒 *Tu carrito:*")
}

func TestEngine_CancelFromEveryState(t *testing.T) {
	f := newFixture(t)
	f.seedAcme(t)

	steps := [][]string{
		{"acme"},
		{"acme", "ver SKU1"},
		{"acme", "ver SKU1", "agregar"},
		{"acme", "SKU1 2", "pedido"},
	}
	for _, script := range steps {
		require.NoError(t, f.store.DeleteAllSessions())
		for _, line := range script {
			f.say(line)
		}
		f.msgr.reset()

		f.say("cancelar")

		assert.Contains(t, f.msgr.lastTo(t, testUser), "cancelé todo", "script %v", script)
		session := f.session(t)
		assert.True(t, session.Pristine(), "script %v left a dirty session", script)
	}
}

func TestEngine_GoBackChain(t *testing.T) {
	f := newFixture(t)
	merchant := f.seedMerchant(t, "ACME", "Acme", "+5215550009999")
	f.seedProduct(t, &models.Product{
		MerchantID: merchant.MerchantID, SKU: "SKU1", ShortName: "Cafe", Price: 10, Stock: 5, Category: "Bebidas",
	})

	f.say("acme") // -> category menu
	f.say("bebidas")
	assert.Equal(t, models.StateBrowsingProducts, f.session(t).State)

	f.say("atras")
	assert.Equal(t, models.StateSelectingCategory, f.session(t).State)

	f.msgr.reset()
	f.say("atras")
	assert.Equal(t, models.StateSelectingCompany, f.session(t).State)
	assert.Contains(t, f.msgr.lastTo(t, testUser), "*Empresas disponibles:*")

	f.msgr.reset()
	f.say("atras")
	assert.Contains(t, f.msgr.lastTo(t, testUser), "No hay un menú anterior")
}

func TestEngine_GoBackWithoutCategoriesStaysInCatalog(t *testing.T) {
	f := newFixture(t)
	f.seedAcme(t)
	f.say("acme")
	f.msgr.reset()

	f.say("atras")

	// no category layer: the catalog is the top menu for this merchant
	assert.Equal(t, models.StateBrowsingProducts, f.session(t).State)
	assert.Contains(t, f.msgr.lastTo(t, testUser), "*Productos:*")
}

func TestEngine_GoBackFromDetailClearsPending(t *testing.T) {
	f := newFixture(t)
	f.seedAcme(t)
	f.say("acme")
	f.say("ver SKU1")

	f.say("2") // bound to atras on the detail view

	session := f.session(t)
	assert.Equal(t, models.StateBrowsingProducts, session.State)
	assert.Nil(t, session.PendingProduct)
}

func TestEngine_GoBackFromQuantityReturnsToDetail(t *testing.T) {
	f := newFixture(t)
	f.seedAcme(t)
	f.say("acme")
	f.say("ver SKU1")
	f.say("agregar")
	f.msgr.reset()

	f.say("atras")

	session := f.session(t)
	assert.Equal(t, models.StateAwaitingProductAction, session.State)
	require.NotNil(t, session.PendingProduct)
	assert.Contains(t, f.msgr.lastTo(t, testUser), "📦 *Cafe de olla*")
}

func TestEngine_RepeatMenuRebindsOptions(t *testing.T) {
	f := newFixture(t)
	f.seedAcme(t)
	f.say("acme")
	f.msgr.reset()

	f.say("menu")

	assert.Contains(t, f.msgr.lastTo(t, testUser), "*Productos:*")
	assert.Equal(t, "SKU1", f.session(t).NumberedOptions["1"])
}

func TestEngine_HelpListsCommands(t *testing.T) {
	f := newFixture(t)
	f.seedAcme(t)
	f.msgr.reset()

	f.say("ayuda")

	last := f.msgr.lastTo(t, testUser)
	assert.Contains(t, last, "*Comandos:*")
	assert.Contains(t, last, "*pedido*")
	assert.Contains(t, last, "*cancelar*")
}

func TestEngine_CorruptedStateForcesReset(t *testing.T) {
	f := newFixture(t)
	f.seedAcme(t)
	f.say("acme")

	session := f.session(t)
	session.State = "GARBAGE"
	require.NoError(t, f.store.SaveSession(session))
	f.msgr.reset()

	f.say("hola")

	assert.Contains(t, f.msgr.lastTo(t, testUser), "Perdí el hilo de la conversación")
	assert.True(t, f.session(t).Pristine())
}

func TestEngine_MissingPendingProductForcesReset(t *testing.T) {
	f := newFixture(t)
	f.seedAcme(t)
	f.say("acme")

	session := f.session(t)
	session.State = models.StateAwaitingProductAction
	session.PendingProduct = nil
	require.NoError(t, f.store.SaveSession(session))
	f.msgr.reset()

	f.say("algo")

	assert.Contains(t, f.msgr.lastTo(t, testUser), "Perdí el hilo de la conversación")
	assert.True(t, f.session(t).Pristine())
}

// flakyStore injects a failure into one lookup to exercise the turn-level
// error boundary.
type flakyStore struct {
	storage.Store
	categoriesErr error
}

func (f *flakyStore) GetCategories(merchantID string) ([]string, error) {
	if f.categoriesErr != nil {
		return nil, f.categoriesErr
	}
	return f.Store.GetCategories(merchantID)
}

func TestEngine_CollaboratorFailureSendsGenericError(t *testing.T) {
	store := storage.NewMemoryStore()
	flaky := &flakyStore{Store: store, categoriesErr: fmt.Errorf("db gone")}
	msgr := &fakeMessenger{failTo: make(map[string]bool)}
	engine := NewEngine(flaky, msgr, NewOrderService(flaky, msgr), nil, nil)

	_, err := store.CreateMerchant(&models.MerchantRegistration{Code: "ACME", Name: "Acme", WhatsApp: "+5215550009999"})
	require.NoError(t, err)

	engine.HandleMessage(InboundMessage{From: testUser, Text: "acme"})

	texts := msgr.textsTo(testUser)
	require.NotEmpty(t, texts)
	assert.Contains(t, texts[len(texts)-1], "Algo salió mal de nuestro lado")

	// the turn failed after the company was set; the session survives as
	// saved, never wiped by the error path
	session, err := store.GetSession(testUser)
	require.NoError(t, err)
	assert.NotNil(t, session.Company)
}

func TestEngine_ChatOverlayRelaysVerbatim(t *testing.T) {
	f := newFixture(t)
	merchant := f.seedAcme(t)
	f.say("acme") // product list binds "1" -> SKU1
	f.msgr.reset()

	f.say("chat")
	assert.Contains(t, f.msgr.lastTo(t, testUser), "Estás chateando con *Acme*")
	session := f.session(t)
	assert.Equal(t, models.StateChatting, session.State)
	assert.Equal(t, models.StateBrowsingProducts, session.PreviousState)

	// stale menu bindings take no part while chatting: "1" goes out as "1"
	f.msgr.reset()
	f.say("1")

	relayed := f.msgr.lastTo(t, merchant.WhatsApp)
	assert.Contains(t, relayed, "*Mensaje de cliente* ("+testUser+")")
	assert.Contains(t, relayed, "\n\n1\n\n")
	assert.Contains(t, relayed, "ref: "+testUser)
	assert.Empty(t, f.msgr.textsTo(testUser), "chat turns answer the merchant, not the user")

	f.msgr.reset()
	f.say("seguir")

	texts := f.msgr.textsTo(testUser)
	require.Len(t, texts, 2)
	assert.Contains(t, texts[0], "seguimos con tu pedido")
	assert.Contains(t, texts[1], "*Productos:*")
	assert.Equal(t, models.StateBrowsingProducts, f.session(t).State)
	assert.Empty(t, f.session(t).PreviousState)
}

func TestEngine_ChatCancelResetsEverything(t *testing.T) {
	f := newFixture(t)
	f.seedAcme(t)
	f.say("acme")
	f.say("SKU1 2")
	f.say("chat")
	f.msgr.reset()

	f.say("cancelar")

	assert.Contains(t, f.msgr.lastTo(t, testUser), "cancelé todo")
	assert.True(t, f.session(t).Pristine())
}

func TestEngine_ChatNeedsCompany(t *testing.T) {
	f := newFixture(t)
	f.seedAcme(t)
	f.msgr.reset()

	f.say("chat")

	assert.Contains(t, f.msgr.lastTo(t, testUser), "primero dime con cuál empresa")
	assert.Equal(t, models.StateSelectingCompany, f.session(t).State)
}

func TestEngine_StopChattingOutsideChatIsNoop(t *testing.T) {
	f := newFixture(t)
	f.seedAcme(t)
	f.say("acme")
	f.msgr.reset()

	f.say("seguir")

	assert.Contains(t, f.msgr.lastTo(t, testUser), "seguimos con tu pedido")
	assert.Equal(t, models.StateBrowsingProducts, f.session(t).State)
}

func TestEngine_MerchantQuoteReplyIsInterceptedBeforeFSM(t *testing.T) {
	f := newFixture(t)
	merchant := f.seedAcme(t)

	f.engine.HandleMessage(InboundMessage{
		From:       "whatsapp:" + merchant.WhatsApp,
		Text:       "Sale mañana temprano",
		QuotedText: MerchantOrderNotice(&models.Order{OrderID: "ORD-TEST", ChatAddress: testUser}),
	})

	relayed := f.msgr.lastTo(t, testUser)
	assert.Equal(t, "💬 *Acme:* Sale mañana temprano", relayed)

	// no conversation session was opened for the merchant
	_, err := f.store.GetSession(merchant.WhatsApp)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestEngine_MerchantWithoutQuoteShopsNormally(t *testing.T) {
	f := newFixture(t)
	merchant := f.seedAcme(t)
	f.msgr.reset()

	f.engine.HandleMessage(InboundMessage{From: merchant.WhatsApp, Text: "acme"})

	// treated as a regular customer turn
	assert.Contains(t, f.msgr.textsTo(merchant.WhatsApp)[0], "Bienvenido a *Acme*")
	_, err := f.store.GetSession(merchant.WhatsApp)
	assert.NoError(t, err)
}

func TestEngine_DispatchProcessesInArrivalOrder(t *testing.T) {
	f := newFixture(t)
	f.seedAcme(t)

	f.engine.Dispatch(InboundMessage{From: testUser, Text: "acme"})
	f.engine.Dispatch(InboundMessage{From: testUser, Text: "SKU1 2"})

	require.Eventually(t, func() bool {
		session, err := f.store.GetSession(testUser)
		return err == nil && len(session.Cart) == 1 && session.Cart[0].Quantity == 2
	}, 2*time.Second, 10*time.Millisecond, "both dispatched turns should apply in order")
}

func TestNormalizeAddress(t *testing.T) {
	assert.Equal(t, "+5215550001111", normalizeAddress("whatsapp:+5215550001111"))
	assert.Equal(t, "+5215550001111", normalizeAddress("  +5215550001111 "))
	assert.Equal(t, "", normalizeAddress(""))
}
