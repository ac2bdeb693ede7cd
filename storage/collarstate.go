// Package storage persists collar engine state in a single BoltDB file.
// Records are JSON-encoded into one bucket per entity, keyed by big-endian
// id, with bucket sequences backing the monotonic id counters.
package storage

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"collarcore/core/types"
	"collarcore/native/collar"
)

var (
	bucketAccounts  = []byte("accounts")
	bucketOffers    = []byte("offers")
	bucketProviders = []byte("providers")
	bucketTakers    = []byte("takers")
	bucketRolls     = []byte("rolls")

	// ErrClosed is returned once the store has been closed.
	ErrClosed = errors.New("collar state: store closed")
)

// CollarState is the bbolt-backed implementation of the collar engines'
// state interface.
type CollarState struct {
	db *bolt.DB
}

// Open initialises (and migrates) the BoltDB-backed state at path.
func Open(path string, options *bolt.Options) (*CollarState, error) {
	if options == nil {
		options = &bolt.Options{Timeout: time.Second}
	} else if options.Timeout == 0 {
		options.Timeout = time.Second
	}
	db, err := bolt.Open(path, 0o600, options)
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketAccounts, bucketOffers, bucketProviders, bucketTakers, bucketRolls} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &CollarState{db: db}, nil
}

// Close releases the underlying database handle.
func (s *CollarState) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func idKey(id uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, id)
	return key
}

func (s *CollarState) putJSON(bucket []byte, key []byte, value interface{}) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("collar state: encode: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put(key, encoded)
	})
}

func (s *CollarState) getJSON(bucket []byte, key []byte, out interface{}) (bool, error) {
	if s == nil || s.db == nil {
		return false, ErrClosed
	}
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucket).Get(key)
		if raw == nil {
			return nil
		}
		found = true
		return json.Unmarshal(raw, out)
	})
	if err != nil {
		return false, err
	}
	return found, nil
}

func (s *CollarState) nextSequence(bucket []byte) (uint64, error) {
	if s == nil || s.db == nil {
		return 0, ErrClosed
	}
	var id uint64
	err := s.db.Update(func(tx *bolt.Tx) error {
		seq, err := tx.Bucket(bucket).NextSequence()
		if err != nil {
			return err
		}
		id = seq
		return nil
	})
	return id, err
}

func (s *CollarState) currentSequence(bucket []byte) (uint64, error) {
	if s == nil || s.db == nil {
		return 0, ErrClosed
	}
	var seq uint64
	err := s.db.View(func(tx *bolt.Tx) error {
		seq = tx.Bucket(bucket).Sequence()
		return nil
	})
	return seq, err
}

// GetAccount loads the cash account for an address, nil when absent.
func (s *CollarState) GetAccount(addr collar.Address) (*types.Account, error) {
	acc := &types.Account{}
	found, err := s.getJSON(bucketAccounts, addr[:], acc)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return acc, nil
}

// PutAccount stores the cash account for an address.
func (s *CollarState) PutAccount(addr collar.Address, acc *types.Account) error {
	if acc == nil {
		return fmt.Errorf("collar state: nil account")
	}
	return s.putJSON(bucketAccounts, addr[:], acc)
}

// OfferPut stores a liquidity offer keyed by id.
func (s *CollarState) OfferPut(offer *collar.LiquidityOffer) error {
	sanitized, err := collar.SanitizeOffer(offer)
	if err != nil {
		return err
	}
	return s.putJSON(bucketOffers, idKey(sanitized.ID), sanitized)
}

// OfferGet loads a liquidity offer by id.
func (s *CollarState) OfferGet(id uint64) (*collar.LiquidityOffer, bool) {
	offer := &collar.LiquidityOffer{}
	found, err := s.getJSON(bucketOffers, idKey(id), offer)
	if err != nil || !found {
		return nil, false
	}
	return offer, true
}

// OfferNextID reserves the next offer identifier.
func (s *CollarState) OfferNextID() (uint64, error) {
	return s.nextSequence(bucketOffers)
}

// ProviderPut stores a provider position keyed by id.
func (s *CollarState) ProviderPut(pos *collar.ProviderPosition) error {
	if pos == nil {
		return fmt.Errorf("collar state: nil provider position")
	}
	return s.putJSON(bucketProviders, idKey(pos.ID), pos.Clone())
}

// ProviderGet loads a provider position by id.
func (s *CollarState) ProviderGet(id uint64) (*collar.ProviderPosition, bool) {
	pos := &collar.ProviderPosition{}
	found, err := s.getJSON(bucketProviders, idKey(id), pos)
	if err != nil || !found {
		return nil, false
	}
	return pos, true
}

// ProviderNextID reserves the next provider position identifier.
func (s *CollarState) ProviderNextID() (uint64, error) {
	return s.nextSequence(bucketProviders)
}

// TakerPut stores a taker position keyed by id.
func (s *CollarState) TakerPut(pos *collar.TakerPosition) error {
	if pos == nil {
		return fmt.Errorf("collar state: nil taker position")
	}
	return s.putJSON(bucketTakers, idKey(pos.ID), pos.Clone())
}

// TakerGet loads a taker position by id.
func (s *CollarState) TakerGet(id uint64) (*collar.TakerPosition, bool) {
	pos := &collar.TakerPosition{}
	found, err := s.getJSON(bucketTakers, idKey(id), pos)
	if err != nil || !found {
		return nil, false
	}
	return pos, true
}

// TakerNextID reserves the next taker position identifier.
func (s *CollarState) TakerNextID() (uint64, error) {
	return s.nextSequence(bucketTakers)
}

// RollPut stores a roll offer keyed by id.
func (s *CollarState) RollPut(offer *collar.RollOffer) error {
	if offer == nil {
		return fmt.Errorf("collar state: nil roll offer")
	}
	return s.putJSON(bucketRolls, idKey(offer.ID), offer.Clone())
}

// RollGet loads a roll offer by id.
func (s *CollarState) RollGet(id uint64) (*collar.RollOffer, bool) {
	offer := &collar.RollOffer{}
	found, err := s.getJSON(bucketRolls, idKey(id), offer)
	if err != nil || !found {
		return nil, false
	}
	return offer, true
}

// RollNextID reserves the next roll offer identifier.
func (s *CollarState) RollNextID() (uint64, error) {
	return s.nextSequence(bucketRolls)
}

func (s *CollarState) forEach(bucket []byte, visit func(raw []byte) error) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	return s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).ForEach(func(_, raw []byte) error {
			return visit(raw)
		})
	})
}

// OffersByProvider lists all offers posted by the given address, in id order.
func (s *CollarState) OffersByProvider(provider collar.Address) ([]*collar.LiquidityOffer, error) {
	var out []*collar.LiquidityOffer
	err := s.forEach(bucketOffers, func(raw []byte) error {
		offer := &collar.LiquidityOffer{}
		if err := json.Unmarshal(raw, offer); err != nil {
			return err
		}
		if offer.Provider == provider {
			out = append(out, offer)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ProvidersByOwner lists provider positions currently held by the address.
// Burned records are skipped.
func (s *CollarState) ProvidersByOwner(owner collar.Address) ([]*collar.ProviderPosition, error) {
	var out []*collar.ProviderPosition
	err := s.forEach(bucketProviders, func(raw []byte) error {
		pos := &collar.ProviderPosition{}
		if err := json.Unmarshal(raw, pos); err != nil {
			return err
		}
		if !pos.Burned && pos.Owner == owner {
			out = append(out, pos)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// TakersByOwner lists taker positions currently held by the address.
// Burned records are skipped.
func (s *CollarState) TakersByOwner(owner collar.Address) ([]*collar.TakerPosition, error) {
	var out []*collar.TakerPosition
	err := s.forEach(bucketTakers, func(raw []byte) error {
		pos := &collar.TakerPosition{}
		if err := json.Unmarshal(raw, pos); err != nil {
			return err
		}
		if !pos.Burned && pos.Owner == owner {
			out = append(out, pos)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// NextIDs reports the id counters exposed through the read-only API.
func (s *CollarState) NextIDs() (offers, providers, takers, rolls uint64, err error) {
	if offers, err = s.currentSequence(bucketOffers); err != nil {
		return
	}
	if providers, err = s.currentSequence(bucketProviders); err != nil {
		return
	}
	if takers, err = s.currentSequence(bucketTakers); err != nil {
		return
	}
	rolls, err = s.currentSequence(bucketRolls)
	return
}
