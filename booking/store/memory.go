// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/booking-engine/booking"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu            sync.RWMutex
	roomTypes     map[booking.RoomTypeID]booking.RoomType
	availability  map[availKey]int
	reservations  map[booking.ReservationID]booking.Reservation
	proofs        map[booking.ReservationID]booking.PaymentProof
	webhookEvents map[string]booking.WebhookEvent
	corrections   []booking.Correction
}

type availKey struct {
	RoomTypeID booking.RoomTypeID
	Date       string
}

func NewMemory() *Memory {
	return &Memory{
		roomTypes:     make(map[booking.RoomTypeID]booking.RoomType),
		availability:  make(map[availKey]int),
		reservations:  make(map[booking.ReservationID]booking.Reservation),
		proofs:        make(map[booking.ReservationID]booking.PaymentProof),
		webhookEvents: make(map[string]booking.WebhookEvent),
	}
}

// =============================================================================
// CAPACITY CATALOG
// =============================================================================

func (m *Memory) SaveRoomType(_ context.Context, rt booking.RoomType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roomTypes[rt.ID] = rt
	return nil
}

func (m *Memory) GetRoomType(_ context.Context, id booking.RoomTypeID) (*booking.RoomType, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getRoomTypeLocked(id)
}

func (m *Memory) getRoomTypeLocked(id booking.RoomTypeID) (*booking.RoomType, error) {
	rt, ok := m.roomTypes[id]
	if !ok {
		return nil, booking.ErrRoomTypeNotFound
	}
	return &rt, nil
}

func (m *Memory) TotalQuantity(_ context.Context, id booking.RoomTypeID) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rt, err := m.getRoomTypeLocked(id)
	if err != nil {
		return 0, err
	}
	return rt.TotalQuantity, nil
}

func (m *Memory) UpdateRoomTypeQuantity(_ context.Context, id booking.RoomTypeID, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rt, ok := m.roomTypes[id]
	if !ok {
		return booking.ErrRoomTypeNotFound
	}
	rt.TotalQuantity = quantity
	m.roomTypes[id] = rt
	return nil
}

// =============================================================================
// AVAILABILITY LEDGER
// =============================================================================

// ensureLocked lazily initializes an entry at the room type's capacity.
func (m *Memory) ensureLocked(id booking.RoomTypeID, date booking.Date) (availKey, error) {
	rt, ok := m.roomTypes[id]
	if !ok {
		return availKey{}, booking.ErrRoomTypeNotFound
	}
	k := availKey{RoomTypeID: id, Date: date.String()}
	if _, ok := m.availability[k]; !ok {
		m.availability[k] = rt.TotalQuantity
	}
	return k, nil
}

func (m *Memory) GetAvailability(_ context.Context, id booking.RoomTypeID, date booking.Date) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getAvailabilityLocked(id, date)
}

func (m *Memory) getAvailabilityLocked(id booking.RoomTypeID, date booking.Date) (int, error) {
	k, err := m.ensureLocked(id, date)
	if err != nil {
		return 0, err
	}
	return m.availability[k], nil
}

func (m *Memory) GetAvailabilityRange(_ context.Context, id booking.RoomTypeID, rng booking.DateRange) ([]booking.DayAvailability, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getAvailabilityRangeLocked(id, rng)
}

func (m *Memory) getAvailabilityRangeLocked(id booking.RoomTypeID, rng booking.DateRange) ([]booking.DayAvailability, error) {
	days := make([]booking.DayAvailability, 0, rng.Nights())
	for _, d := range rng.Dates() {
		count, err := m.getAvailabilityLocked(id, d)
		if err != nil {
			return nil, err
		}
		days = append(days, booking.DayAvailability{Date: d, Available: count})
	}
	return days, nil
}

func (m *Memory) TryDebit(_ context.Context, id booking.RoomTypeID, rng booking.DateRange, amount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tryDebitLocked(id, rng, amount)
}

func (m *Memory) tryDebitLocked(id booking.RoomTypeID, rng booking.DateRange, amount int) error {
	keys := make([]availKey, 0, rng.Nights())

	// Check every date before touching any of them.
	for _, d := range rng.Dates() {
		k, err := m.ensureLocked(id, d)
		if err != nil {
			return err
		}
		if m.availability[k] < amount {
			return &booking.InsufficientCapacityError{
				RoomTypeID: id,
				Date:       d,
				Requested:  amount,
				Available:  m.availability[k],
			}
		}
		keys = append(keys, k)
	}

	for _, k := range keys {
		m.availability[k] -= amount
	}
	return nil
}

func (m *Memory) Credit(_ context.Context, id booking.RoomTypeID, rng booking.DateRange, amount int) ([]booking.Date, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creditLocked(id, rng, amount)
}

func (m *Memory) creditLocked(id booking.RoomTypeID, rng booking.DateRange, amount int) ([]booking.Date, error) {
	rt, ok := m.roomTypes[id]
	if !ok {
		return nil, booking.ErrRoomTypeNotFound
	}

	var clamped []booking.Date
	for _, d := range rng.Dates() {
		k, err := m.ensureLocked(id, d)
		if err != nil {
			return nil, err
		}
		next := m.availability[k] + amount
		if next > rt.TotalQuantity {
			next = rt.TotalQuantity
			clamped = append(clamped, d)
		}
		m.availability[k] = next
	}
	return clamped, nil
}

func (m *Memory) ListOversold(_ context.Context) ([]booking.OversoldEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listOversoldLocked()
}

func (m *Memory) listOversoldLocked() ([]booking.OversoldEntry, error) {
	var entries []booking.OversoldEntry
	for k, count := range m.availability {
		rt, ok := m.roomTypes[k.RoomTypeID]
		if !ok || count <= rt.TotalQuantity {
			continue
		}
		date, err := booking.ParseDate(k.Date)
		if err != nil {
			continue
		}
		entries = append(entries, booking.OversoldEntry{
			RoomTypeID:    k.RoomTypeID,
			Date:          date,
			Available:     count,
			TotalQuantity: rt.TotalQuantity,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].RoomTypeID != entries[j].RoomTypeID {
			return entries[i].RoomTypeID < entries[j].RoomTypeID
		}
		return entries[i].Date.Before(entries[j].Date)
	})
	return entries, nil
}

func (m *Memory) ClampAvailability(_ context.Context, id booking.RoomTypeID, date booking.Date, max int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clampAvailabilityLocked(id, date, max)
}

func (m *Memory) clampAvailabilityLocked(id booking.RoomTypeID, date booking.Date, max int) (bool, error) {
	k := availKey{RoomTypeID: id, Date: date.String()}
	count, ok := m.availability[k]
	if !ok || count <= max {
		return false, nil
	}
	m.availability[k] = max
	return true, nil
}

// =============================================================================
// RESERVATIONS
// =============================================================================

func (m *Memory) SaveReservation(_ context.Context, res booking.Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveReservationLocked(res)
}

func (m *Memory) saveReservationLocked(res booking.Reservation) error {
	m.reservations[res.ID] = res
	return nil
}

func (m *Memory) GetReservation(_ context.Context, id booking.ReservationID) (*booking.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getReservationLocked(id)
}

func (m *Memory) getReservationLocked(id booking.ReservationID) (*booking.Reservation, error) {
	res, ok := m.reservations[id]
	if !ok {
		return nil, booking.ErrReservationNotFound
	}
	return &res, nil
}

func (m *Memory) ListReservationsByUser(_ context.Context, userID booking.UserID) ([]booking.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listReservationsByUserLocked(userID)
}

func (m *Memory) listReservationsByUserLocked(userID booking.UserID) ([]booking.Reservation, error) {
	var result []booking.Reservation
	for _, res := range m.reservations {
		if res.UserID == userID {
			result = append(result, res)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (m *Memory) TransitionReservation(_ context.Context, id booking.ReservationID, from []booking.ReservationStatus, to booking.ReservationStatus, at time.Time) (*booking.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transitionLocked(id, from, to, at)
}

func (m *Memory) transitionLocked(id booking.ReservationID, from []booking.ReservationStatus, to booking.ReservationStatus, at time.Time) (*booking.Reservation, error) {
	res, ok := m.reservations[id]
	if !ok {
		return nil, booking.ErrReservationNotFound
	}

	matched := false
	for _, f := range from {
		if res.Status == f {
			matched = true
			break
		}
	}
	if !matched {
		return nil, &booking.InvalidTransitionError{
			ReservationID: id,
			Current:       res.Status,
			Attempted:     to,
		}
	}

	res.Status = to
	stamp := at
	switch to {
	case booking.StatusConfirmed:
		res.ConfirmedAt = &stamp
	case booking.StatusRejected, booking.StatusExpired, booking.StatusCancelled:
		res.CancelledAt = &stamp
	}
	m.reservations[id] = res
	return &res, nil
}

func (m *Memory) FindOverdue(_ context.Context, now time.Time, statuses []booking.ReservationStatus) ([]booking.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findOverdueLocked(now, statuses)
}

func (m *Memory) findOverdueLocked(now time.Time, statuses []booking.ReservationStatus) ([]booking.Reservation, error) {
	eligible := make(map[booking.ReservationStatus]bool, len(statuses))
	for _, s := range statuses {
		eligible[s] = true
	}

	var result []booking.Reservation
	for _, res := range m.reservations {
		if eligible[res.Status] && res.PaymentDeadline.Before(now) {
			result = append(result, res)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].PaymentDeadline.Before(result[j].PaymentDeadline)
	})
	return result, nil
}

// =============================================================================
// PAYMENT PROOFS / WEBHOOK EVENTS / CORRECTIONS
// =============================================================================

func (m *Memory) SavePaymentProof(_ context.Context, proof booking.PaymentProof) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.proofs[proof.ReservationID] = proof
	return nil
}

func (m *Memory) GetPaymentProof(_ context.Context, id booking.ReservationID) (*booking.PaymentProof, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	proof, ok := m.proofs[id]
	if !ok {
		return nil, booking.ErrReservationNotFound
	}
	return &proof, nil
}

func (m *Memory) RecordWebhookEvent(_ context.Context, ev booking.WebhookEvent) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recordWebhookEventLocked(ev)
}

func (m *Memory) recordWebhookEventLocked(ev booking.WebhookEvent) (bool, error) {
	if _, ok := m.webhookEvents[ev.ExternalPaymentID]; ok {
		return true, nil
	}
	m.webhookEvents[ev.ExternalPaymentID] = ev
	return false, nil
}

func (m *Memory) SaveCorrection(_ context.Context, c booking.Correction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.corrections = append(m.corrections, c)
	return nil
}

func (m *Memory) ListCorrections(_ context.Context) ([]booking.Correction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]booking.Correction, len(m.corrections))
	copy(result, m.corrections)
	return result, nil
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction. For the memory store this is
// simulated with a snapshot + rollback on error.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(booking.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.snapshot()

	view := &txMemoryView{parent: tm.Memory}
	if err := fn(view); err != nil {
		tm.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	roomTypes     map[booking.RoomTypeID]booking.RoomType
	availability  map[availKey]int
	reservations  map[booking.ReservationID]booking.Reservation
	proofs        map[booking.ReservationID]booking.PaymentProof
	webhookEvents map[string]booking.WebhookEvent
	corrections   []booking.Correction
}

func (tm *TxMemory) snapshot() memorySnapshot {
	s := memorySnapshot{
		roomTypes:     make(map[booking.RoomTypeID]booking.RoomType, len(tm.roomTypes)),
		availability:  make(map[availKey]int, len(tm.availability)),
		reservations:  make(map[booking.ReservationID]booking.Reservation, len(tm.reservations)),
		proofs:        make(map[booking.ReservationID]booking.PaymentProof, len(tm.proofs)),
		webhookEvents: make(map[string]booking.WebhookEvent, len(tm.webhookEvents)),
		corrections:   append([]booking.Correction{}, tm.corrections...),
	}
	for k, v := range tm.roomTypes {
		s.roomTypes[k] = v
	}
	for k, v := range tm.availability {
		s.availability[k] = v
	}
	for k, v := range tm.reservations {
		s.reservations[k] = v
	}
	for k, v := range tm.proofs {
		s.proofs[k] = v
	}
	for k, v := range tm.webhookEvents {
		s.webhookEvents[k] = v
	}
	return s
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.roomTypes = s.roomTypes
	tm.availability = s.availability
	tm.reservations = s.reservations
	tm.proofs = s.proofs
	tm.webhookEvents = s.webhookEvents
	tm.corrections = s.corrections
}

// txMemoryView runs against the already-locked parent state.
type txMemoryView struct {
	parent *Memory
}

func (tv *txMemoryView) SaveRoomType(_ context.Context, rt booking.RoomType) error {
	tv.parent.roomTypes[rt.ID] = rt
	return nil
}

func (tv *txMemoryView) GetRoomType(_ context.Context, id booking.RoomTypeID) (*booking.RoomType, error) {
	return tv.parent.getRoomTypeLocked(id)
}

func (tv *txMemoryView) TotalQuantity(_ context.Context, id booking.RoomTypeID) (int, error) {
	rt, err := tv.parent.getRoomTypeLocked(id)
	if err != nil {
		return 0, err
	}
	return rt.TotalQuantity, nil
}

func (tv *txMemoryView) UpdateRoomTypeQuantity(_ context.Context, id booking.RoomTypeID, quantity int) error {
	rt, ok := tv.parent.roomTypes[id]
	if !ok {
		return booking.ErrRoomTypeNotFound
	}
	rt.TotalQuantity = quantity
	tv.parent.roomTypes[id] = rt
	return nil
}

func (tv *txMemoryView) GetAvailability(_ context.Context, id booking.RoomTypeID, date booking.Date) (int, error) {
	return tv.parent.getAvailabilityLocked(id, date)
}

func (tv *txMemoryView) GetAvailabilityRange(_ context.Context, id booking.RoomTypeID, rng booking.DateRange) ([]booking.DayAvailability, error) {
	return tv.parent.getAvailabilityRangeLocked(id, rng)
}

func (tv *txMemoryView) TryDebit(_ context.Context, id booking.RoomTypeID, rng booking.DateRange, amount int) error {
	return tv.parent.tryDebitLocked(id, rng, amount)
}

func (tv *txMemoryView) Credit(_ context.Context, id booking.RoomTypeID, rng booking.DateRange, amount int) ([]booking.Date, error) {
	return tv.parent.creditLocked(id, rng, amount)
}

func (tv *txMemoryView) ListOversold(_ context.Context) ([]booking.OversoldEntry, error) {
	return tv.parent.listOversoldLocked()
}

func (tv *txMemoryView) ClampAvailability(_ context.Context, id booking.RoomTypeID, date booking.Date, max int) (bool, error) {
	return tv.parent.clampAvailabilityLocked(id, date, max)
}

func (tv *txMemoryView) SaveReservation(_ context.Context, res booking.Reservation) error {
	return tv.parent.saveReservationLocked(res)
}

func (tv *txMemoryView) GetReservation(_ context.Context, id booking.ReservationID) (*booking.Reservation, error) {
	return tv.parent.getReservationLocked(id)
}

func (tv *txMemoryView) ListReservationsByUser(_ context.Context, userID booking.UserID) ([]booking.Reservation, error) {
	return tv.parent.listReservationsByUserLocked(userID)
}

func (tv *txMemoryView) TransitionReservation(_ context.Context, id booking.ReservationID, from []booking.ReservationStatus, to booking.ReservationStatus, at time.Time) (*booking.Reservation, error) {
	return tv.parent.transitionLocked(id, from, to, at)
}

func (tv *txMemoryView) FindOverdue(_ context.Context, now time.Time, statuses []booking.ReservationStatus) ([]booking.Reservation, error) {
	return tv.parent.findOverdueLocked(now, statuses)
}

func (tv *txMemoryView) SavePaymentProof(_ context.Context, proof booking.PaymentProof) error {
	tv.parent.proofs[proof.ReservationID] = proof
	return nil
}

func (tv *txMemoryView) GetPaymentProof(_ context.Context, id booking.ReservationID) (*booking.PaymentProof, error) {
	proof, ok := tv.parent.proofs[id]
	if !ok {
		return nil, booking.ErrReservationNotFound
	}
	return &proof, nil
}

func (tv *txMemoryView) RecordWebhookEvent(_ context.Context, ev booking.WebhookEvent) (bool, error) {
	return tv.parent.recordWebhookEventLocked(ev)
}

func (tv *txMemoryView) SaveCorrection(_ context.Context, c booking.Correction) error {
	tv.parent.corrections = append(tv.parent.corrections, c)
	return nil
}

func (tv *txMemoryView) ListCorrections(_ context.Context) ([]booking.Correction, error) {
	result := make([]booking.Correction, len(tv.parent.corrections))
	copy(result, tv.parent.corrections)
	return result, nil
}
