package leaderboard

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Keys probed, in order, for the row list when the payload is an object.
var listKeys = []string{"leaderboard", "items", "data", "users"}

// Field aliases, first present wins.
var (
	idKeys        = []string{"userId", "user_id", "id"}
	usernameKeys  = []string{"username", "userName"}
	firstNameKeys = []string{"firstName", "first_name"}
	lastNameKeys  = []string{"lastName", "last_name"}
	photoKeys     = []string{"photoUrl", "photo_url", "avatar"}
	scoreKeys     = []string{"spentStars", "spent_stars", "score", "xp"}
)

// Normalize decodes a leaderboard payload. It accepts a bare array of rows
// or an object holding the array under one of the known keys. Rows that
// are not objects are skipped. Duplicate users keep their first row; rows
// are keyed by id, then username, then position.
//
// An empty or null body, or an object without a row list, is an empty
// board rather than an error.
func Normalize(body []byte) ([]Entry, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return []Entry{}, nil
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var payload any
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("leaderboard: decode payload: %w", err)
	}

	var rows []any
	switch v := payload.(type) {
	case []any:
		rows = v
	case map[string]any:
		for _, k := range listKeys {
			if list, ok := v[k].([]any); ok {
				rows = list
				break
			}
		}
	}

	out := make([]Entry, 0, len(rows))
	seen := make(map[string]struct{}, len(rows))
	for i, row := range rows {
		obj, ok := row.(map[string]any)
		if !ok {
			continue
		}
		e := entryFrom(obj)
		key := e.ID
		if key == "" {
			key = e.Username
		}
		if key == "" {
			key = "row-" + strconv.Itoa(i)
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, e)
	}
	return out, nil
}

func entryFrom(obj map[string]any) Entry {
	e := Entry{
		ID:        idField(obj, idKeys),
		Username:  stringField(obj, usernameKeys),
		FirstName: stringField(obj, firstNameKeys),
		LastName:  stringField(obj, lastNameKeys),
		PhotoURL:  stringField(obj, photoKeys),
		Score:     numberField(obj, scoreKeys),
	}
	e.DisplayName = displayName(e)
	return e
}

func lookup(obj map[string]any, keys []string) (any, bool) {
	for _, k := range keys {
		if v, ok := obj[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func stringField(obj map[string]any, keys []string) string {
	v, ok := lookup(obj, keys)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

// idField accepts numeric and string ids.
func idField(obj map[string]any, keys []string) string {
	v, ok := lookup(obj, keys)
	if !ok {
		return ""
	}
	switch id := v.(type) {
	case json.Number:
		if n, err := id.Int64(); err == nil {
			return strconv.FormatInt(n, 10)
		}
		return id.String()
	case string:
		return strings.TrimSpace(id)
	}
	return ""
}

// numberField accepts numbers and numeric strings; anything else is 0.
func numberField(obj map[string]any, keys []string) float64 {
	v, ok := lookup(obj, keys)
	if !ok {
		return 0
	}
	var f float64
	var err error
	switch n := v.(type) {
	case json.Number:
		f, err = n.Float64()
	case string:
		f, err = strconv.ParseFloat(strings.TrimSpace(n), 64)
	default:
		return 0
	}
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}
