package icrypto

import "encoding/binary"

const (
	aadMessage = "MESSAGE"
	aadKeyWrap = "KEYWRAP"
)

// AADMessage binds a content ciphertext to its message and crew context so
// an envelope cannot be replayed as a different message.
func AADMessage(crewID, messageID, messageType string) []byte {
	return buildAAD(aadMessage, crewID, messageID, messageType)
}

// AADKeyWrap binds a wrapped content key to the message, the recipient, and
// the recipient key version it was sealed under.
func AADKeyWrap(crewID, messageID, recipientID string, keyVersion uint64) []byte {
	return buildAAD(aadKeyWrap, crewID, messageID, recipientID, keyVersion)
}

func buildAAD(parts ...any) []byte {
	var res []byte
	for _, p := range parts {
		switch v := p.(type) {
		case string:
			res = appendLenPrefix(res, []byte(v))
		case []byte:
			res = appendLenPrefix(res, v)
		case uint64:
			b := make([]byte, 8)
			binary.BigEndian.PutUint64(b, v)
			res = append(res, b...)
		}
	}
	return res
}

func appendLenPrefix(b, data []byte) []byte {
	l := make([]byte, 4)
	binary.BigEndian.PutUint32(l, uint32(len(data)))
	b = append(b, l...)
	b = append(b, data...)
	return b
}
