package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// state хранит полный снимок in-memory данных.
type state struct {
	orders    map[string]domain.Order
	products  map[string]domain.Product
	returns   map[string]domain.ReturnRequest
	outbox    map[string]outboxRecord
	timeline  map[string][]domain.TimelineEvent
	carts     map[string][]domain.CartLine
	addresses map[string]domain.Address
}

func newState() *state {
	return &state{
		orders:    make(map[string]domain.Order),
		products:  make(map[string]domain.Product),
		returns:   make(map[string]domain.ReturnRequest),
		outbox:    make(map[string]outboxRecord),
		timeline:  make(map[string][]domain.TimelineEvent),
		carts:     make(map[string][]domain.CartLine),
		addresses: make(map[string]domain.Address),
	}
}

// clone копирует снимок; заказы копируются вместе с позициями.
func (s *state) clone() *state {
	c := newState()
	for id, order := range s.orders {
		c.orders[id] = order.Clone()
	}
	for id, product := range s.products {
		c.products[id] = product
	}
	for id, request := range s.returns {
		c.returns[id] = request
	}
	for id, record := range s.outbox {
		c.outbox[id] = record
	}
	for id, events := range s.timeline {
		c.timeline[id] = append([]domain.TimelineEvent(nil), events...)
	}
	for id, lines := range s.carts {
		c.carts[id] = append([]domain.CartLine(nil), lines...)
	}
	for id, address := range s.addresses {
		c.addresses[id] = address
	}
	return c
}

func (s *state) repositories() domain.Repositories {
	return domain.Repositories{
		Orders:   &orderRepository{st: s},
		Products: &productRepository{st: s},
		Returns:  &returnRequestRepository{st: s},
		Outbox:   &outboxRepository{st: s},
		Timeline: &timelineRepository{st: s},
	}
}

// Store реализует in-memory хранилище для локальной разработки и тестов.
// Транзакции выполняются строго последовательно: Do работает с копией
// всего снимка и подменяет им текущее состояние только при успехе.
// Блокировка общая для всех заказов и держится на время fn, включая вызовы
// платёжного шлюза, поэтому операции над разными заказами тоже идут по очереди.
// Для production-нагрузки предназначен postgres.Store с блокировкой строки заказа.
type Store struct {
	mu sync.RWMutex
	st *state
}

// NewStore создаёт пустое хранилище.
func NewStore() *Store {
	return &Store{st: newState()}
}

// Do выполняет fn как одну транзакцию.
func (s *Store) Do(ctx context.Context, fn func(ctx context.Context, repos domain.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	draft := s.st.clone()
	if err := fn(ctx, draft.repositories()); err != nil {
		return err
	}
	s.st = draft
	return nil
}

// View выполняет fn над текущим снимком без копирования. Чтения идут
// параллельно друг другу, но ждут завершения Do.
func (s *Store) View(ctx context.Context, fn func(ctx context.Context, repos domain.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(ctx, s.st.repositories())
}

// Outbox возвращает outbox-репозиторий вне транзакции (для воркера публикации).
func (s *Store) Outbox() domain.OutboxRepository {
	return &lockedOutbox{store: s}
}

// Carts возвращает корзины пользователей.
func (s *Store) Carts() *CartService {
	return &CartService{store: s}
}

// Addresses возвращает справочник адресов.
func (s *Store) Addresses() domain.AddressResolver {
	return &addressResolver{store: s}
}

// PutProduct добавляет или заменяет товар.
func (s *Store) PutProduct(product domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.products[product.ID] = product
}

// PutAddress добавляет или заменяет адрес.
func (s *Store) PutAddress(address domain.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.addresses[address.ID] = address
}

// Product возвращает текущее состояние товара.
func (s *Store) Product(id string) (domain.Product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	product, ok := s.st.products[id]
	return product, ok
}

func (s *Store) withState(fn func(st *state) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.st)
}

var _ domain.UnitOfWork = (*Store)(nil)
