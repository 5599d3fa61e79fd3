package repository

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/checkout-saga/internal/model"
)

// MemoryInventory хранит товары в памяти. Каждая строка товара защищена собственной блокировкой.
type MemoryInventory struct {
	mu       sync.RWMutex
	products map[string]*productEntry
	nextID   atomic.Int64
}

type productEntry struct {
	mu      sync.Mutex
	product model.Product
}

// NewMemoryInventory создаёт пустой склад в памяти.
func NewMemoryInventory() *MemoryInventory {
	return &MemoryInventory{products: make(map[string]*productEntry)}
}

func (r *MemoryInventory) Close() error                   { return nil }
func (r *MemoryInventory) Ping(ctx context.Context) error { return nil }

// SaveProduct создаёт товар или обновляет существующий.
func (r *MemoryInventory) SaveProduct(ctx context.Context, p *model.Product) error {
	r.mu.Lock()
	e, ok := r.products[p.SKU]
	if !ok {
		e = &productEntry{}
		r.products[p.SKU] = e
	}
	r.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now()
	if e.product.ID == 0 {
		e.product.ID = r.nextID.Add(1)
		e.product.CreatedAt = now
	}
	e.product.SKU = p.SKU
	e.product.Name = p.Name
	e.product.Price = p.Price
	e.product.StockQuantity = p.StockQuantity
	e.product.UpdatedAt = now

	*p = e.product
	return nil
}

// GetProduct возвращает копию товара по SKU.
func (r *MemoryInventory) GetProduct(ctx context.Context, sku string) (*model.Product, error) {
	e, err := r.entry(sku)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	p := e.product
	return &p, nil
}

// DecreaseStock списывает qty единиц под блокировкой товара.
func (r *MemoryInventory) DecreaseStock(ctx context.Context, sku string, qty int) error {
	e, err := r.entry(sku)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.product.StockQuantity < qty {
		return fmt.Errorf("%w: %s has %d, requested %d", model.ErrInsufficientStock, sku, e.product.StockQuantity, qty)
	}
	e.product.StockQuantity -= qty
	e.product.UpdatedAt = time.Now()
	return nil
}

// IncreaseStock возвращает qty единиц на склад.
func (r *MemoryInventory) IncreaseStock(ctx context.Context, sku string, qty int) error {
	e, err := r.entry(sku)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	e.product.StockQuantity += qty
	e.product.UpdatedAt = time.Now()
	return nil
}

func (r *MemoryInventory) entry(sku string) (*productEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.products[sku]
	if !ok {
		return nil, fmt.Errorf("%w: product %s", model.ErrNotFound, sku)
	}
	return e, nil
}

// MemoryLedger хранит кошельки и журнал в памяти. Баланс кошелька меняется только под его блокировкой.
type MemoryLedger struct {
	mu      sync.RWMutex
	wallets map[int64]*walletEntry
	nextID  atomic.Int64
	nextTxn atomic.Int64
}

type walletEntry struct {
	mu     sync.Mutex
	wallet model.Wallet
	txns   []model.Transaction
}

// NewMemoryLedger создаёт пустой журнал в памяти.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{wallets: make(map[int64]*walletEntry)}
}

func (r *MemoryLedger) Close() error                   { return nil }
func (r *MemoryLedger) Ping(ctx context.Context) error { return nil }

// CreateWallet создаёт кошелёк и заполняет его ID и CreatedAt.
func (r *MemoryLedger) CreateWallet(ctx context.Context, w *model.Wallet) error {
	w.ID = r.nextID.Add(1)
	w.CreatedAt = time.Now()

	r.mu.Lock()
	r.wallets[w.ID] = &walletEntry{wallet: *w}
	r.mu.Unlock()
	return nil
}

// GetWallet возвращает копию кошелька.
func (r *MemoryLedger) GetWallet(ctx context.Context, id int64) (*model.Wallet, error) {
	e, err := r.entry(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	w := e.wallet
	return &w, nil
}

// ListWalletsByUser возвращает кошельки пользователя в порядке создания.
func (r *MemoryLedger) ListWalletsByUser(ctx context.Context, userID int64) ([]model.Wallet, error) {
	r.mu.RLock()
	entries := make([]*walletEntry, 0)
	for _, e := range r.wallets {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	res := make([]model.Wallet, 0)
	for _, e := range entries {
		e.mu.Lock()
		if e.wallet.UserID == userID {
			res = append(res, e.wallet)
		}
		e.mu.Unlock()
	}
	slices.SortFunc(res, func(a, b model.Wallet) int { return cmp.Compare(a.ID, b.ID) })
	return res, nil
}

// Deposit зачисляет amount под блокировкой кошелька.
func (r *MemoryLedger) Deposit(ctx context.Context, walletID int64, amount decimal.Decimal) (*model.Transaction, error) {
	e, err := r.entry(walletID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	e.wallet.Balance = e.wallet.Balance.Add(amount)
	return r.appendTxn(e, model.TransactionDeposit, amount, ""), nil
}

// Withdraw списывает amount под блокировкой кошелька. Повтор с тем же reference возвращает уже записанную операцию.
func (r *MemoryLedger) Withdraw(ctx context.Context, walletID int64, amount decimal.Decimal, reference string) (*model.Transaction, error) {
	e, err := r.entry(walletID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if reference != "" {
		for _, t := range e.txns {
			if t.Reference == reference {
				existing := t
				return &existing, nil
			}
		}
	}

	if e.wallet.Balance.LessThan(amount) {
		return nil, fmt.Errorf("%w: wallet %d", model.ErrInsufficientFunds, walletID)
	}

	e.wallet.Balance = e.wallet.Balance.Sub(amount)
	return r.appendTxn(e, model.TransactionWithdraw, amount, reference), nil
}

// ListTransactions возвращает операции кошелька, новые первыми.
func (r *MemoryLedger) ListTransactions(ctx context.Context, walletID int64, limit, offset int) ([]model.Transaction, error) {
	e, err := r.entry(walletID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	res := make([]model.Transaction, 0)
	for i := len(e.txns) - 1 - offset; i >= 0 && len(res) < limit; i-- {
		res = append(res, e.txns[i])
	}
	return res, nil
}

// must be called with e.mu held
func (r *MemoryLedger) appendTxn(e *walletEntry, typ model.TransactionType, amount decimal.Decimal, reference string) *model.Transaction {
	t := model.Transaction{
		ID:        r.nextTxn.Add(1),
		WalletID:  e.wallet.ID,
		Type:      typ,
		Amount:    amount,
		Reference: reference,
		Timestamp: time.Now(),
	}
	e.txns = append(e.txns, t)
	return &t
}

func (r *MemoryLedger) entry(id int64) (*walletEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.wallets[id]
	if !ok {
		return nil, fmt.Errorf("%w: wallet %d", model.ErrNotFound, id)
	}
	return e, nil
}

// MemoryShop хранит корзины и заказы магазина в памяти.
type MemoryShop struct {
	mu          sync.Mutex
	carts       map[int64]*model.Cart
	orders      map[int64]*model.Order
	nextCart    int64
	nextItem    int64
	nextOrder   int64
	nextPayment int64
}

// NewMemoryShop создаёт пустое хранилище магазина в памяти.
func NewMemoryShop() *MemoryShop {
	return &MemoryShop{
		carts:  make(map[int64]*model.Cart),
		orders: make(map[int64]*model.Order),
	}
}

func (r *MemoryShop) Close() error                   { return nil }
func (r *MemoryShop) Ping(ctx context.Context) error { return nil }

// GetCart возвращает копию корзины.
func (r *MemoryShop) GetCart(ctx context.Context, id int64) (*model.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.carts[id]
	if !ok {
		return nil, fmt.Errorf("%w: cart %d", model.ErrNotFound, id)
	}
	return copyCart(c), nil
}

// GetCartByUser возвращает копию корзины пользователя.
func (r *MemoryShop) GetCartByUser(ctx context.Context, userID int64) (*model.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c := r.cartOf(userID); c != nil {
		return copyCart(c), nil
	}
	return nil, fmt.Errorf("%w: cart of user %d", model.ErrNotFound, userID)
}

// AddCartItem добавляет позицию, создавая корзину при первом добавлении.
func (r *MemoryShop) AddCartItem(ctx context.Context, userID int64, item model.CartItem) (*model.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	c := r.cartOf(userID)
	if c == nil {
		r.nextCart++
		c = &model.Cart{ID: r.nextCart, UserID: userID, CreatedAt: now}
		r.carts[c.ID] = c
	}
	c.UpdatedAt = now

	idx := slices.IndexFunc(c.Items, func(it model.CartItem) bool { return it.SKU == item.SKU })
	if idx >= 0 {
		c.Items[idx].Quantity += item.Quantity
	} else {
		r.nextItem++
		item.ID = r.nextItem
		c.Items = append(c.Items, item)
	}

	return copyCart(c), nil
}

// DeleteCart удаляет корзину.
func (r *MemoryShop) DeleteCart(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.carts, id)
	return nil
}

// CreateOrder сохраняет заказ и заполняет идентификаторы.
func (r *MemoryShop) CreateOrder(ctx context.Context, o *model.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	r.nextOrder++
	o.ID = r.nextOrder
	o.CreatedAt = now
	o.UpdatedAt = now
	for i := range o.Items {
		r.nextItem++
		o.Items[i].ID = r.nextItem
	}
	r.assignPayment(o, now)

	r.orders[o.ID] = copyOrder(o)
	return nil
}

// UpdateOrder сохраняет статус, курсор саги и оплату заказа.
func (r *MemoryShop) UpdateOrder(ctx context.Context, o *model.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.orders[o.ID]
	if !ok {
		return fmt.Errorf("%w: order %d", model.ErrNotFound, o.ID)
	}
	r.storeOrder(o, stored)
	return nil
}

// UpdateOrderCursor сохраняет заказ, только если он всё ещё в PENDING и его сохранённый курсор саги
// равен (step, reserved). Иначе возвращает model.ErrConcurrentUpdate.
func (r *MemoryShop) UpdateOrderCursor(ctx context.Context, o *model.Order, step model.SagaStep, reserved int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.orders[o.ID]
	if !ok {
		return fmt.Errorf("%w: order %d", model.ErrNotFound, o.ID)
	}
	if stored.Status != model.OrderStatusPending || stored.SagaStep != step || stored.ReservedItems != reserved {
		return fmt.Errorf("%w: order %d", model.ErrConcurrentUpdate, o.ID)
	}
	r.storeOrder(o, stored)
	return nil
}

func (r *MemoryShop) storeOrder(o, stored *model.Order) {
	now := time.Now()
	o.UpdatedAt = now
	o.CreatedAt = stored.CreatedAt
	if o.Payment != nil && o.Payment.ID == 0 && stored.Payment != nil {
		o.Payment.ID = stored.Payment.ID
		o.Payment.CreatedAt = stored.Payment.CreatedAt
	}
	r.assignPayment(o, now)

	r.orders[o.ID] = copyOrder(o)
}

// GetOrder возвращает копию заказа.
func (r *MemoryShop) GetOrder(ctx context.Context, id int64) (*model.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: order %d", model.ErrNotFound, id)
	}
	return copyOrder(o), nil
}

// ListOrdersByUser возвращает заказы пользователя, новые первыми.
func (r *MemoryShop) ListOrdersByUser(ctx context.Context, userID int64) ([]model.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res := make([]model.Order, 0)
	for _, o := range r.orders {
		if o.UserID == userID {
			res = append(res, *copyOrder(o))
		}
	}
	slices.SortFunc(res, func(a, b model.Order) int { return cmp.Compare(b.ID, a.ID) })
	return res, nil
}

// ListStalePendingOrders возвращает заказы PENDING, не менявшиеся с момента before.
func (r *MemoryShop) ListStalePendingOrders(ctx context.Context, before time.Time, limit int) ([]model.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res := make([]model.Order, 0)
	for _, o := range r.orders {
		if o.Status == model.OrderStatusPending && o.UpdatedAt.Before(before) {
			res = append(res, *copyOrder(o))
		}
	}
	slices.SortFunc(res, func(a, b model.Order) int { return cmp.Compare(a.ID, b.ID) })
	if len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

func (r *MemoryShop) cartOf(userID int64) *model.Cart {
	for _, c := range r.carts {
		if c.UserID == userID {
			return c
		}
	}
	return nil
}

func (r *MemoryShop) assignPayment(o *model.Order, now time.Time) {
	if o.Payment == nil {
		return
	}
	o.Payment.OrderID = o.ID
	if o.Payment.ID == 0 {
		r.nextPayment++
		o.Payment.ID = r.nextPayment
		o.Payment.CreatedAt = now
	}
}

func copyCart(c *model.Cart) *model.Cart {
	cp := *c
	cp.Items = slices.Clone(c.Items)
	return &cp
}

func copyOrder(o *model.Order) *model.Order {
	cp := *o
	cp.Items = slices.Clone(o.Items)
	if o.Payment != nil {
		p := *o.Payment
		if o.Payment.TransactionID != nil {
			id := *o.Payment.TransactionID
			p.TransactionID = &id
		}
		cp.Payment = &p
	}
	return &cp
}
