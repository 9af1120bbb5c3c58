package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/sessions"

	"museum-ticketing-platform/internal/config"
	"museum-ticketing-platform/internal/models"
)

const (
	guestSessionName = "museum_guest"
	guestItemsKey    = "cart_items"

	// MaxGuestCartItems keeps the cookie under securecookie's 4096 byte limit
	MaxGuestCartItems = 10
)

// GuestCartStore keeps a pre-login cart in a signed cookie session. Items
// stored here hold no seats.
type GuestCartStore struct {
	store sessions.Store
}

// NewGuestCartStore creates a cookie-backed store signed with the session secret
func NewGuestCartStore(cfg config.SessionConfig, secure bool) *GuestCartStore {
	store := sessions.NewCookieStore([]byte(cfg.Secret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   cfg.MaxAge,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return &GuestCartStore{store: store}
}

// NewGuestCartStoreWith wraps an existing session store
func NewGuestCartStoreWith(store sessions.Store) *GuestCartStore {
	return &GuestCartStore{store: store}
}

// Items returns the staged items. A missing or unreadable cookie is an empty cart.
func (s *GuestCartStore) Items(r *http.Request) []models.GuestCartItem {
	session, err := s.store.Get(r, guestSessionName)
	if err != nil {
		return []models.GuestCartItem{}
	}

	raw, ok := session.Values[guestItemsKey].(string)
	if !ok || raw == "" {
		return []models.GuestCartItem{}
	}

	var items []models.GuestCartItem
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return []models.GuestCartItem{}
	}
	return items
}

// Add appends an item and saves the session
func (s *GuestCartStore) Add(w http.ResponseWriter, r *http.Request, item models.GuestCartItem) ([]models.GuestCartItem, error) {
	items := s.Items(r)
	if len(items) >= MaxGuestCartItems {
		return nil, models.NewValidationError(fmt.Sprintf("Guest cart is limited to %d items", MaxGuestCartItems), nil)
	}
	items = append(items, item)
	if err := s.save(w, r, items); err != nil {
		return nil, err
	}
	return items, nil
}

// Clear empties the guest cart and expires the cookie
func (s *GuestCartStore) Clear(w http.ResponseWriter, r *http.Request) error {
	session, _ := s.store.Get(r, guestSessionName)
	delete(session.Values, guestItemsKey)
	session.Options.MaxAge = -1
	if err := session.Save(r, w); err != nil {
		return fmt.Errorf("failed to clear guest cart: %w", err)
	}
	return nil
}

func (s *GuestCartStore) save(w http.ResponseWriter, r *http.Request, items []models.GuestCartItem) error {
	encoded, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("failed to encode guest cart: %w", err)
	}

	// Get returns a fresh session alongside a decode error
	session, _ := s.store.Get(r, guestSessionName)
	session.Values[guestItemsKey] = string(encoded)
	if err := session.Save(r, w); err != nil {
		return fmt.Errorf("failed to save guest cart: %w", err)
	}
	return nil
}
