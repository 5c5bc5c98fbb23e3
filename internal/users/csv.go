// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package users

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/jeranaias/aidev/internal/logging"
)

// ErrInvalidCSV is returned by ImportCSV for input without a usable header.
var ErrInvalidCSV = errors.New("invalid user CSV")

var csvHeader = []string{"id", "username", "password", "settings"}

// EncodeCSV renders users with the settings column quoted. Other columns
// are written as-is.
func EncodeCSV(users []User) string {
	lines := make([]string, 0, len(users)+1)
	lines = append(lines, strings.Join(csvHeader, ","))
	for _, u := range users {
		lines = append(lines, strings.Join([]string{
			u.ID,
			u.Username,
			u.Password,
			`"` + strings.ReplaceAll(u.Settings, `"`, `""`) + `"`,
		}, ","))
	}
	return strings.Join(lines, "\n")
}

// DecodeCSV parses rows written by EncodeCSV. It needs a header and at
// least one more line, and the header must name id and username. Rows with
// fewer than four fields are skipped.
func DecodeCSV(content string) ([]User, error) {
	lines := strings.Split(strings.TrimSpace(content), "\n")
	if len(lines) < 2 {
		return nil, fmt.Errorf("%w: need a header and at least one row", ErrInvalidCSV)
	}

	header := strings.Split(strings.TrimRight(lines[0], "\r"), ",")
	if !slices.Contains(header, "id") || !slices.Contains(header, "username") {
		return nil, fmt.Errorf("%w: header must include id and username", ErrInvalidCSV)
	}

	users := make([]User, 0, len(lines)-1)
	for n, line := range lines[1:] {
		fields := splitLine(strings.TrimRight(line, "\r"))
		if len(fields) < 4 {
			logging.Debug("skipping short CSV row", logging.Int("line", n+2))
			continue
		}
		users = append(users, User{ID: fields[0], Username: fields[1], Password: fields[2], Settings: fields[3]})
	}
	return users, nil
}

// splitLine splits on commas outside quotes. A quote toggles quoting; a
// doubled quote inside a quoted run is a literal quote.
func splitLine(line string) []string {
	var (
		fields   []string
		current  strings.Builder
		inQuotes bool
	)
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == '"' && inQuotes && i+1 < len(line) && line[i+1] == '"':
			current.WriteByte('"')
			i++
		case c == '"':
			inQuotes = !inQuotes
		case c == ',' && !inQuotes:
			fields = append(fields, current.String())
			current.Reset()
		default:
			current.WriteByte(c)
		}
	}
	return append(fields, current.String())
}

// ExportCSV renders the user table.
func (s *Store) ExportCSV(ctx context.Context) (string, error) {
	users, err := s.List(ctx)
	if err != nil {
		return "", err
	}
	return EncodeCSV(users), nil
}

// ImportCSV replaces the user table with the parsed rows and returns how
// many were imported.
func (s *Store) ImportCSV(ctx context.Context, content string) (int, error) {
	users, err := DecodeCSV(content)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.save(ctx, users); err != nil {
		return 0, err
	}
	logging.Info("users imported", logging.Int("count", len(users)))
	return len(users), nil
}
