package speakerdb

import (
	"fmt"
	"strings"
)

// Key layout (badger, ":"-separated segments):
//
//	spk:id:{identityID}        → msgpack-encoded identityRecord
//	spk:vp:{identityID}:{seq}  → msgpack-encoded voiceprintRecord
//
// The seq is zero-padded so lexicographic order within an identity's
// voiceprint prefix matches insertion order. The in-memory vector index
// keys each voiceprint as "{identityID}/{seq}" so a search hit can be
// mapped back to its identity without touching badger.

const keySep = ":"

func identityKey(id string) []byte {
	return []byte("spk" + keySep + "id" + keySep + id)
}

func identityPrefix() []byte {
	return []byte("spk" + keySep + "id" + keySep)
}

func voiceprintKey(id string, seq int) []byte {
	return []byte(fmt.Sprintf("spk%svp%s%s%s%08d", keySep, keySep, id, keySep, seq))
}

// voiceprintPrefix scopes a scan to one identity's voiceprints.
// The trailing separator keeps "abc" from matching "abcd".
func voiceprintPrefix(id string) []byte {
	return []byte("spk" + keySep + "vp" + keySep + id + keySep)
}

func allVoiceprintsPrefix() []byte {
	return []byte("spk" + keySep + "vp" + keySep)
}

// indexKey builds the vector-index key for one voiceprint.
// Identity IDs are UUIDs and never contain "/".
func indexKey(identityID string, seq int) string {
	return fmt.Sprintf("%s/%08d", identityID, seq)
}

// identityOfIndexKey extracts the identity ID from a vector-index key.
func identityOfIndexKey(key string) string {
	id, _, _ := strings.Cut(key, "/")
	return id
}

// parseVoiceprintKey extracts identity ID and seq from a badger key of the
// form spk:vp:{id}:{seq}.
func parseVoiceprintKey(key []byte) (id string, seq int, err error) {
	parts := strings.Split(string(key), keySep)
	if len(parts) != 4 || parts[0] != "spk" || parts[1] != "vp" {
		return "", 0, fmt.Errorf("speakerdb: malformed voiceprint key %q", key)
	}
	if _, err := fmt.Sscanf(parts[3], "%d", &seq); err != nil {
		return "", 0, fmt.Errorf("speakerdb: malformed voiceprint seq in key %q: %w", key, err)
	}
	return parts[2], seq, nil
}
