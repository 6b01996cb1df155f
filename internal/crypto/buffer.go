package crypto

// EncryptBufferBlob encrypts a serialized observation buffer backup.
// If key is nil, blob is returned unchanged.
func EncryptBufferBlob(blob []byte, key []byte) ([]byte, error) {
	if key == nil || len(blob) == 0 {
		return blob, nil
	}
	enc, err := Encrypt(string(blob), key)
	if err != nil {
		return nil, err
	}
	return []byte(enc), nil
}

// DecryptBufferBlob reverses EncryptBufferBlob. Blobs without the "enc:"
// prefix are passed through unchanged, so pre-existing unencrypted
// backups remain readable after EncryptionKey is configured.
func DecryptBufferBlob(blob []byte, key []byte) ([]byte, error) {
	if key == nil || len(blob) == 0 {
		return blob, nil
	}
	dec, err := Decrypt(string(blob), key)
	if err != nil {
		return nil, err
	}
	return []byte(dec), nil
}
