package oui

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

//go:embed data/oui.json
var embeddedDB []byte

const unknownVendor = "Unknown"

// DB maps the first three MAC octets to a short manufacturer name.
type DB struct {
	vendors map[string]string
}

func LoadEmbedded() (*DB, error) {
	return Load(embeddedDB)
}

// LoadWithOverlay loads the embedded table and, when path is set, merges a
// user-supplied JSON table of the same shape over it.
func LoadWithOverlay(path string) (*DB, error) {
	db, err := LoadEmbedded()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(path) == "" {
		return db, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read oui overlay: %w", err)
	}
	extra, err := Load(data)
	if err != nil {
		return nil, fmt.Errorf("parse oui overlay %s: %w", path, err)
	}
	for prefix, vendor := range extra.vendors {
		db.vendors[prefix] = vendor
	}
	return db, nil
}

func Load(data []byte) (*DB, error) {
	m := map[string]string{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	normalized := make(map[string]string, len(m))
	for k, v := range m {
		normalized[normalizePrefix(k)] = strings.TrimSpace(v)
	}
	return &DB{vendors: normalized}, nil
}

func (db *DB) Len() int {
	if db == nil {
		return 0
	}
	return len(db.vendors)
}

// Lookup returns the vendor for mac, or "Unknown". Locally administered
// (randomized) addresses never match a vendor.
func (db *DB) Lookup(mac string) string {
	if db == nil {
		return unknownVendor
	}
	prefix := normalizePrefix(mac)
	if LocallyAdministered(prefix) {
		return unknownVendor
	}
	if vendor, ok := db.vendors[prefix]; ok && vendor != "" {
		return vendor
	}
	return unknownVendor
}

// LocallyAdministered reports whether the U/L bit of the first octet is set,
// as it is for the private addresses phones rotate per network.
func LocallyAdministered(mac string) bool {
	prefix := normalizePrefix(mac)
	if len(prefix) < 2 {
		return false
	}
	first, err := strconv.ParseUint(prefix[:2], 16, 8)
	if err != nil {
		return false
	}
	return first&0x02 != 0
}

func normalizePrefix(v string) string {
	replacer := strings.NewReplacer(":", "", "-", "", ".", "")
	v = strings.ToUpper(strings.TrimSpace(replacer.Replace(v)))
	if len(v) >= 6 {
		return v[:6]
	}
	return v
}
