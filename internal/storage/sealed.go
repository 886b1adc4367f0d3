// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"fmt"

	"github.com/jeranaias/threadchat/internal/secret"
)

// Sealed encrypts values before they reach the wrapped store. Keys stay in
// clear text so prefix listing keeps working.
type Sealed struct {
	Store
	sealer *secret.Sealer
}

// NewSealed wraps inner. A nil sealer stores values unchanged.
func NewSealed(inner Store, sealer *secret.Sealer) *Sealed {
	return &Sealed{Store: inner, sealer: sealer}
}

// Get implements Store.
func (s *Sealed) Get(key string) (string, error) {
	v, err := s.Store.Get(key)
	if err != nil {
		return "", err
	}
	plain, err := s.sealer.Open(v)
	if err != nil {
		return "", fmt.Errorf("failed to open %q: %w", key, err)
	}
	return plain, nil
}

// Set implements Store.
func (s *Sealed) Set(key, value string) error {
	sealed, err := s.sealer.Seal(value)
	if err != nil {
		return fmt.Errorf("failed to seal %q: %w", key, err)
	}
	return s.Store.Set(key, sealed)
}
