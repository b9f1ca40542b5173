package store

import (
	"fmt"
	"strconv"
)

// Redis key layout. Every key is namespaced by instance name so multiple
// Grimoire deployments can share one Redis server.
//
//	grimoire:{instance}:sheet:{id}          sheet JSON blob
//	grimoire:{instance}:macro:{id}          macro JSON blob
//	grimoire:{instance}:user:{id}:sheets    hash: sheet_name -> sheet id
//	grimoire:{instance}:user:{id}:macros    hash: macro_name -> macro id
//	grimoire:{instance}:sheet_id_seq        INCR-allocated id counter
//	grimoire:{instance}:macro_id_seq        INCR-allocated id counter
//	grimoire:{instance}:user:{id}           user summary JSON blob

// SheetKey returns the Redis key for a sheet document.
func SheetKey(instance string, id int64) string {
	return fmt.Sprintf("grimoire:%s:sheet:%d", instance, id)
}

// MacroKey returns the Redis key for a macro document.
func MacroKey(instance string, id int64) string {
	return fmt.Sprintf("grimoire:%s:macro:%d", instance, id)
}

// SheetIndexKey returns the key of the per-owner sheet name index hash.
func SheetIndexKey(instance string, userID int64) string {
	return fmt.Sprintf("grimoire:%s:user:%d:sheets", instance, userID)
}

// MacroIndexKey returns the key of the per-owner macro name index hash.
func MacroIndexKey(instance string, userID int64) string {
	return fmt.Sprintf("grimoire:%s:user:%d:macros", instance, userID)
}

// SheetSeqKey returns the key of the sheet id counter.
func SheetSeqKey(instance string) string {
	return fmt.Sprintf("grimoire:%s:sheet_id_seq", instance)
}

// MacroSeqKey returns the key of the macro id counter.
func MacroSeqKey(instance string) string {
	return fmt.Sprintf("grimoire:%s:macro_id_seq", instance)
}

// UserKey returns the Redis key for a user summary.
func UserKey(instance string, id int64) string {
	return fmt.Sprintf("grimoire:%s:user:%d", instance, id)
}

// ParseID parses an id stored as a hash value back into an int64.
func ParseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed document id %q: %w", s, err)
	}
	return id, nil
}
