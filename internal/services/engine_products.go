package services

import (
	"errors"
	"strconv"
	"strings"

	"github.com/vendibot/vendibot-backend/internal/models"
	"github.com/vendibot/vendibot-backend/internal/storage"
)

// inStock filters a product list down to what can actually be ordered
func inStock(products []*models.Product) []*models.Product {
	var out []*models.Product
	for _, p := range products {
		if p.InStock() {
			out = append(out, p)
		}
	}
	return out
}

func (e *Engine) lookupProduct(session *models.Session, sku string) (*models.Product, error) {
	return e.store.GetProduct(session.Company.MerchantID, sku)
}

// showProducts renders the full in-stock catalog for the active company
func (e *Engine) showProducts(session *models.Session) error {
	if !session.HasCompany() {
		return e.corrupted(session)
	}
	products, err := e.store.GetProductsByMerchant(session.Company.MerchantID)
	if err != nil {
		return err
	}
	menu, opts := ProductList(inStock(products))
	session.BindOptions(opts)
	e.send(session, menu)
	return nil
}

// showProductsIn renders the in-stock products of one category
func (e *Engine) showProductsIn(session *models.Session, category string) error {
	if !session.HasCompany() {
		return e.corrupted(session)
	}
	products, err := e.store.GetProductsByCategory(session.Company.MerchantID, category)
	if err != nil {
		return err
	}
	menu, opts := ProductList(inStock(products))
	session.BindOptions(opts)
	e.send(session, menu)
	return nil
}

// snapshotProduct captures the detail-view snapshot consumed by the
// following action and quantity turns.
func snapshotProduct(p *models.Product) *models.PendingProduct {
	snap := &models.PendingProduct{
		SKU:       p.SKU,
		ShortName: p.DisplayName(),
		Price:     p.Price,
		Stock:     p.Stock,
	}
	for _, pres := range p.Presentations {
		snap.Presentations = append(snap.Presentations, models.PresentationOption{
			Name:  pres.Name,
			Price: pres.Price,
			Stock: pres.Stock,
		})
	}
	return snap
}

// showProductDetail resolves the identifier, snapshots the product and
// moves to the action state.
func (e *Engine) showProductDetail(session *models.Session, identifier string) error {
	sku := e.resolveIdentifier(session, identifier)
	product, err := e.lookupProduct(session, sku)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			e.send(session, UnknownSKU(sku))
			return nil
		}
		return err
	}

	session.PendingProduct = snapshotProduct(product)
	session.State = models.StateAwaitingProductAction

	detail, opts := ProductDetail(product)
	session.BindOptions(opts)
	e.sendButtons(session, detail, DetailButtons())
	return nil
}

// resolveIdentifier maps a token to a SKU: bound numbered option first,
// else the raw token uppercased.
func (e *Engine) resolveIdentifier(session *models.Session, token string) string {
	token = strings.TrimSpace(token)
	if value, ok := session.NumberedOptions[token]; ok {
		token = value
	}
	return strings.ToUpper(token)
}

func parseQty(token string) (int, bool) {
	qty, err := strconv.Atoi(token)
	if err != nil || qty <= 0 {
		return 0, false
	}
	return qty, true
}

// handleBrowsing parses free text as an order attempt: "identifier qty" or
// "identifier presentation... qty". Detail requests and sub-commands were
// already peeled off by command resolution.
func (e *Engine) handleBrowsing(session *models.Session, res Resolution) error {
	if !session.HasCompany() {
		return e.corrupted(session)
	}

	if res.Command == CmdAddToCart {
		e.send(session, "🤔 Primero dime cuál producto. Escribe *ver SKU* para ver un producto, o *SKU cantidad* para agregarlo.")
		return nil
	}

	tokens := strings.Fields(res.Text)
	if len(tokens) < 2 {
		e.send(session, InvalidQuantity())
		return nil
	}

	qty, ok := parseQty(tokens[len(tokens)-1])
	if !ok {
		e.send(session, InvalidQuantity())
		return nil
	}

	sku := e.resolveIdentifier(session, tokens[0])
	product, err := e.lookupProduct(session, sku)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			e.send(session, UnknownSKU(sku))
			return nil
		}
		return err
	}

	presentationTokens := tokens[1 : len(tokens)-1]

	if product.HasPresentations() {
		if len(presentationTokens) == 0 {
			// Cannot order a variant product bare; remember the quantity
			// and redirect to the detail view to pick a presentation.
			session.PendingOrder = &models.PendingOrder{SKU: product.SKU, Quantity: qty}
			e.send(session, NeedsPresentation(product))
			return e.showProductDetail(session, product.SKU)
		}

		name := strings.Join(presentationTokens, " ")
		pres := product.FindPresentation(name)
		if pres == nil {
			e.send(session, UnknownPresentation(name))
			return nil
		}
		if qty > pres.Stock {
			e.send(session, InsufficientStock(pres.Stock))
			return nil
		}
		return e.addToCart(session, models.CartItem{
			SKU:          product.SKU,
			ShortName:    product.DisplayName(),
			Quantity:     qty,
			UnitPrice:    pres.Price,
			Presentation: pres.Name,
		})
	}

	if len(presentationTokens) > 0 {
		// flat product, extra tokens between SKU and quantity
		e.send(session, InvalidQuantity())
		return nil
	}
	if qty > product.Stock {
		e.send(session, InsufficientStock(product.Stock))
		return nil
	}
	return e.addToCart(session, models.CartItem{
		SKU:       product.SKU,
		ShortName: product.DisplayName(),
		Quantity:  qty,
		UnitPrice: product.Price,
	})
}

// addToCart merges the line, confirms, and leaves the user browsing
func (e *Engine) addToCart(session *models.Session, item models.CartItem) error {
	lineQty := session.UpsertCartLine(item)
	session.ClearPending()
	session.State = models.StateBrowsingProducts
	e.send(session, AddedToCart(item, lineQty))
	return nil
}

// handleProductAction interprets the choice made on a product detail view
func (e *Engine) handleProductAction(session *models.Session, res Resolution) error {
	if session.PendingProduct == nil {
		return e.corrupted(session)
	}

	if res.Command == CmdAddToCart {
		session.State = models.StateAwaitingQuantity
		if session.PendingProduct.HasPresentations() {
			menu, opts := PresentationMenu(session.PendingProduct)
			session.BindOptions(opts)
			e.send(session, menu)
			return nil
		}
		// Bare-quantity prompt: numerals must arrive literal, so the
		// detail view's bindings cannot stay in effect.
		session.BindOptions(nil)
		e.send(session, AskQuantity(session.PendingProduct))
		return nil
	}

	e.send(session, UnknownAction())
	return nil
}

// handleQuantity parses "quantity" for flat products or
// "presentation quantity" for variant products, validates stock and merges
// the cart line.
func (e *Engine) handleQuantity(session *models.Session, text string) error {
	pending := session.PendingProduct
	if pending == nil {
		return e.corrupted(session)
	}

	// Re-read live stock; the snapshot may be stale by now
	product, err := e.lookupProduct(session, pending.SKU)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			session.ClearPending()
			session.State = models.StateBrowsingProducts
			e.send(session, UnknownSKU(pending.SKU))
			return e.showProducts(session)
		}
		return err
	}

	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		e.send(session, InvalidQuantity())
		return nil
	}

	if !product.HasPresentations() {
		qty, ok := parseQty(tokens[0])
		if !ok || len(tokens) > 1 {
			e.send(session, InvalidQuantity())
			return nil
		}
		if qty > product.Stock {
			e.send(session, InsufficientStock(product.Stock))
			return nil
		}
		return e.addToCart(session, models.CartItem{
			SKU:       product.SKU,
			ShortName: product.DisplayName(),
			Quantity:  qty,
			UnitPrice: product.Price,
		})
	}

	// Variant product: quantity is the last token when numeric, otherwise
	// a quantity remembered from the browsing turn may fill it in.
	var qty int
	var nameTokens []string
	if q, ok := parseQty(tokens[len(tokens)-1]); ok {
		qty = q
		nameTokens = tokens[:len(tokens)-1]
	} else if session.PendingOrder != nil && session.PendingOrder.Quantity > 0 {
		qty = session.PendingOrder.Quantity
		nameTokens = tokens
	} else {
		e.send(session, InvalidQuantity())
		return nil
	}

	if len(nameTokens) == 0 {
		e.send(session, InvalidQuantity())
		return nil
	}

	name := strings.Join(nameTokens, " ")
	if value, ok := session.NumberedOptions[name]; ok {
		name = value
	}
	pres := product.FindPresentation(name)
	if pres == nil {
		menu, opts := PresentationMenu(pending)
		session.BindOptions(opts)
		e.send(session, UnknownPresentation(name)+"\n\n"+menu)
		return nil
	}

	if qty > pres.Stock {
		e.send(session, InsufficientStock(pres.Stock))
		return nil
	}

	return e.addToCart(session, models.CartItem{
		SKU:          product.SKU,
		ShortName:    product.DisplayName(),
		Quantity:     qty,
		UnitPrice:    pres.Price,
		Presentation: pres.Name,
	})
}
