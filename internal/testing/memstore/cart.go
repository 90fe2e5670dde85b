package memstore

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/cart"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// OpenCart implements cart.TxRepository. It finds or creates the user's open cart and locks it.
func (t *Tx) OpenCart(_ context.Context, userID int64, now time.Time) (cart.Cart, error) {
	if err := t.injected("OpenCart"); err != nil {
		return cart.Cart{}, err
	}
	for _, c := range sortedValues(t.st.carts) {
		if c.UserID == userID && c.Status == cart.StatusOpen {
			c.UpdatedAt = now
			t.st.carts[c.ID] = c
			t.lock("cart", c.ID)
			return c, nil
		}
	}
	t.st.cartSeq++
	c := cart.Cart{ID: t.st.cartSeq, UserID: userID, Status: cart.StatusOpen, CreatedAt: now, UpdatedAt: now}
	t.st.carts[c.ID] = c
	t.lock("cart", c.ID)
	return c, nil
}

// ListItems implements cart.TxRepository, joining product names and tax rates.
func (t *Tx) ListItems(_ context.Context, cartID int64) ([]cart.Item, error) {
	if err := t.injected("ListItems"); err != nil {
		return nil, err
	}
	var out []cart.Item
	for _, it := range sortedValues(t.st.cartItems) {
		if it.CartID != cartID {
			continue
		}
		it.TaxRate = decimal.NewFromInt(23)
		if p, ok := t.st.products[it.ProductID]; ok {
			it.Name, it.Code, it.TaxRate = p.Name, p.Code, p.TaxRate
		}
		out = append(out, it)
	}
	return out, nil
}

// SetItem implements cart.TxRepository.
func (t *Tx) SetItem(_ context.Context, cartID, productID int64, qty int, priceNet decimal.Decimal) (int64, error) {
	if err := t.injected("SetItem"); err != nil {
		return 0, err
	}
	if err := t.requireLock("cart", cartID); err != nil {
		return 0, err
	}
	for id, it := range t.st.cartItems {
		if it.CartID == cartID && it.ProductID == productID {
			it.Qty = qty
			t.st.cartItems[id] = it
			return id, nil
		}
	}
	t.st.cartItemSeq++
	t.st.cartItems[t.st.cartItemSeq] = cart.Item{ID: t.st.cartItemSeq, CartID: cartID, ProductID: productID, Qty: qty, PriceNet: priceNet}
	return t.st.cartItemSeq, nil
}

// UpdateItemQuantity implements cart.TxRepository.
func (t *Tx) UpdateItemQuantity(_ context.Context, cartID, itemID int64, qty int) error {
	if err := t.injected("UpdateItemQuantity"); err != nil {
		return err
	}
	if err := t.requireLock("cart", cartID); err != nil {
		return err
	}
	it, ok := t.st.cartItems[itemID]
	if !ok || it.CartID != cartID {
		return notFound("cart item", itemID)
	}
	it.Qty = qty
	t.st.cartItems[itemID] = it
	return nil
}

// DeleteItem implements cart.TxRepository.
func (t *Tx) DeleteItem(_ context.Context, cartID, itemID int64) error {
	if err := t.injected("DeleteItem"); err != nil {
		return err
	}
	if err := t.requireLock("cart", cartID); err != nil {
		return err
	}
	it, ok := t.st.cartItems[itemID]
	if !ok || it.CartID != cartID {
		return notFound("cart item", itemID)
	}
	delete(t.st.cartItems, itemID)
	return nil
}

// CloseCart implements orders.TxRepository.
func (t *Tx) CloseCart(_ context.Context, cartID int64) error {
	if err := t.injected("CloseCart"); err != nil {
		return err
	}
	c, ok := t.st.carts[cartID]
	if !ok || c.Status != cart.StatusOpen {
		return fmt.Errorf("memstore: cart %d is not open: %w", cartID, shared.ErrInvalidTransition)
	}
	c.Status = cart.StatusOrdered
	c.UpdatedAt = t.now()
	t.st.carts[cartID] = c
	return nil
}
