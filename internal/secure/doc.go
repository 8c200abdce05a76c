// Package secure keeps credentials and private key material out of plain
// Go memory while a rotation runs.
//
// Buffers are backed by memguard enclaves: the data is encrypted with
// XSalsa20Poly1305 while idle and only decrypted into mlocked, guard-paged
// memory for the duration of a Use or Open call.
//
//	buf, _ := secure.FromString(apiKey)
//	defer buf.Destroy()
//
//	err := buf.Use(func(key []byte) error {
//	    req.Header.Set("X-PAN-KEY", string(key))
//	    return nil
//	})
//
// On Linux, mlock needs a sufficient RLIMIT_MEMLOCK. When locking fails
// memguard falls back to ordinary memory.
package secure
