package crypt

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"crypto/rc4"
	"crypto/sha256"
	"crypto/sha512"

	"github.com/kpdf/xrefcore/errs"
)

// Session holds one document's encryption dictionary plus, once
// Authenticate succeeds, the derived file key. It implements
// store.EncryptSession.
type Session struct {
	v, r, length int
	o, u         []byte
	oe, ue       []byte
	perms        []byte
	p            int32
	id           []byte
	aes          bool

	key        []byte
	authResult AuthResult
}

// Authenticate tries password as both the user and owner password (Algorithm
// 2 for R2-4, Algorithm 2.A for R6), returning which one succeeded. An empty
// password is the common case of an encrypted-for-permissions-only document.
func (s *Session) Authenticate(password []byte) (AuthResult, error) {
	if s.r == 6 {
		return s.authenticateR6(password)
	}
	return s.authenticateLegacy(password)
}

// authenticateLegacy implements Algorithm 2 (compute an encryption key from a
// candidate password) followed by Algorithm 3.6/3.4 (check /U, falling back
// to /O plus Algorithm 3.3 for the owner password) - ported from
// ScriptRock-pdf's decrypter.New and benoitkugler-pdf's
// validateOwnerPasswordRC4.
func (s *Session) authenticateLegacy(password []byte) (AuthResult, error) {
	userKey := s.computeLegacyKey(password)
	if userOK, err := s.checkLegacyUserKey(userKey); err != nil {
		return Failed, err
	} else if userOK {
		s.key = userKey
		s.authResult = User
		return User, nil
	}

	// Algorithm 3.3: recover the user password implied by the candidate
	// owner password, then retry as that user password.
	recovered, err := s.recoverUserPasswordFromOwner(password)
	if err != nil {
		return Failed, err
	}
	ownerKey := s.computeLegacyKey(recovered)
	if ownerOK, err := s.checkLegacyUserKey(ownerKey); err != nil {
		return Failed, err
	} else if ownerOK {
		s.key = ownerKey
		s.authResult = Owner
		return Owner, nil
	}

	s.authResult = Failed
	return Failed, errs.New(errs.InvalidPassword, "password does not unlock the document")
}

// computeLegacyKey implements Algorithm 2 (ISO 32000-1, 7.6.3.3). It never
// reads /U: the algorithm derives the file key from the password, /O, /P and
// /ID alone.
func (s *Session) computeLegacyKey(password []byte) []byte {
	h := md5.New()
	if len(password) >= 32 {
		h.Write(password[:32])
	} else {
		h.Write(password)
		h.Write(passwordPad[:32-len(password)])
	}
	h.Write(s.o)
	h.Write([]byte{byte(s.p), byte(s.p >> 8), byte(s.p >> 16), byte(s.p >> 24)})
	h.Write(s.id)
	key := h.Sum(nil)

	n := s.length / 8
	if s.r >= 3 {
		for i := 0; i < 50; i++ {
			h.Reset()
			h.Write(key[:n])
			key = h.Sum(key[:0])
		}
		return key[:n]
	}
	return key[:5]
}

// checkLegacyUserKey implements Algorithm 3.6 (R2) / 3.4-3.5 (R3-4):
// recompute /U from key and compare.
func (s *Session) checkLegacyUserKey(key []byte) (bool, error) {
	c, err := rc4.NewCipher(key)
	if err != nil {
		return false, errs.Wrap(errs.InvalidEncryptionDict, err)
	}

	if s.r == 2 {
		w := append([]byte{}, passwordPad...)
		c.XORKeyStream(w, w)
		return bytes.Equal(w, s.u), nil
	}

	h := md5.New()
	h.Write(passwordPad)
	h.Write(s.id)
	w := h.Sum(nil)
	c.XORKeyStream(w, w)

	for i := 1; i <= 19; i++ {
		key1 := make([]byte, len(key))
		for j, b := range key {
			key1[j] = b ^ byte(i)
		}
		c, err := rc4.NewCipher(key1)
		if err != nil {
			return false, errs.Wrap(errs.InvalidEncryptionDict, err)
		}
		c.XORKeyStream(w, w)
	}

	// R3-4's /U only commits to the first 16 bytes; the rest is arbitrary
	// padding (ISO 32000-1, Algorithm 3.5).
	return bytes.HasPrefix(s.u, w[:16]), nil
}

// recoverUserPasswordFromOwner implements Algorithm 3.3: derive the RC4
// key(s) from the owner password and use them to undo the encryption
// applied to /O, yielding the user password /O was computed from.
func (s *Session) recoverUserPasswordFromOwner(ownerPassword []byte) ([]byte, error) {
	h := md5.New()
	if len(ownerPassword) >= 32 {
		h.Write(ownerPassword[:32])
	} else {
		h.Write(ownerPassword)
		h.Write(passwordPad[:32-len(ownerPassword)])
	}
	key := h.Sum(nil)

	n := s.length / 8
	if s.r >= 3 {
		for i := 0; i < 50; i++ {
			h.Reset()
			h.Write(key[:n])
			key = h.Sum(key[:0])
		}
		key = key[:n]
	} else {
		key = key[:5]
	}

	out := append([]byte{}, s.o...)
	if s.r == 2 {
		c, err := rc4.NewCipher(key)
		if err != nil {
			return nil, errs.Wrap(errs.InvalidEncryptionDict, err)
		}
		c.XORKeyStream(out, out)
		return out, nil
	}

	for i := 19; i >= 0; i-- {
		key1 := make([]byte, len(key))
		for j, b := range key {
			key1[j] = b ^ byte(i)
		}
		c, err := rc4.NewCipher(key1)
		if err != nil {
			return nil, errs.Wrap(errs.InvalidEncryptionDict, err)
		}
		c.XORKeyStream(out, out)
	}
	return out, nil
}

// authenticateR6 implements Algorithm 2.A/2.B (ISO 32000-2, AESV3 /R 6):
// both /U and /O are salted SHA-256-family hashes, independent of any RC4
// permutation. Ported from ScriptRock-pdf's newR6/hashR6.
func (s *Session) authenticateR6(password []byte) (AuthResult, error) {
	if len(password) > 127 {
		password = password[:127]
	}
	if len(s.u) < 48 {
		return Failed, errs.New(errs.InvalidEncryptionDict, "/U must be at least 48 bytes for R6")
	}
	u := s.u[:48]

	if bytes.Equal(hashR6(password, u[32:40], nil), u[:32]) {
		key, err := unwrapR6Key(password, u[40:48], s.ue)
		if err != nil {
			return Failed, err
		}
		if err := s.checkPerms(key); err != nil {
			return Failed, err
		}
		s.key = key
		s.authResult = User
		return User, nil
	}

	if len(s.o) < 48 {
		return Failed, errs.New(errs.InvalidEncryptionDict, "/O must be at least 48 bytes for R6")
	}
	o := s.o[:48]
	if bytes.Equal(hashR6(password, o[32:40], u), o[:32]) {
		key, err := unwrapR6Key(password, o[40:48], s.oe)
		if err != nil {
			return Failed, err
		}
		if err := s.checkPerms(key); err != nil {
			return Failed, err
		}
		s.key = key
		s.authResult = Owner
		return Owner, nil
	}

	s.authResult = Failed
	return Failed, errs.New(errs.InvalidPassword, "password does not unlock the document")
}

func unwrapR6Key(password, salt, wrapped []byte) ([]byte, error) {
	intermediate := hashR6(password, salt, nil)
	cb, err := aes.NewCipher(intermediate)
	if err != nil {
		return nil, errs.Wrap(errs.InvalidEncryptionDict, err)
	}
	var iv [16]byte
	mode := cipher.NewCBCDecrypter(cb, iv[:])
	key := make([]byte, 32)
	mode.CryptBlocks(key, wrapped)
	return key, nil
}

// checkPerms cross-validates /Perms against the derived key, the optional
// integrity check Algorithm 2.A step (f) asks for.
func (s *Session) checkPerms(key []byte) error {
	if len(s.perms) != 16 {
		return nil // some writers omit a usable /Perms; not fatal.
	}
	cb, err := aes.NewCipher(key)
	if err != nil {
		return errs.Wrap(errs.InvalidEncryptionDict, err)
	}
	dec := make([]byte, 16)
	cb.Decrypt(dec, s.perms)
	if string(dec[9:12]) != "adb" {
		return errs.New(errs.InvalidEncryptionDict, "/Perms failed integrity check")
	}
	return nil
}

// hashR6 implements Algorithm 2.B (ISO 32000-2): a salted, iterated hash
// over SHA-256/384/512 chosen round by round from the running digest.
// ownerUdata is non-nil only when hashing the owner half (the algorithm
// additionally mixes in the full 48-byte /U string there).
func hashR6(password, salt, ownerUdata []byte) []byte {
	h := sha256.New()
	h.Write(password)
	h.Write(salt)
	h.Write(ownerUdata)
	k := h.Sum(nil)

	for round := 0; ; round++ {
		k1 := make([]byte, 0, 64*(len(password)+len(k)+len(ownerUdata)))
		block := append(append(append([]byte{}, password...), k...), ownerUdata...)
		for i := 0; i < 64; i++ {
			k1 = append(k1, block...)
		}

		cb, err := aes.NewCipher(k[:16])
		if err != nil {
			panic(err) // k[:16] is always a valid AES-128 key
		}
		enc := cipher.NewCBCEncrypter(cb, k[16:32])
		e := make([]byte, len(k1))
		enc.CryptBlocks(e, k1)

		sum := 0
		for _, b := range e[:16] {
			sum += int(b)
		}
		switch sum % 3 {
		case 0:
			v := sha256.Sum256(e)
			k = v[:]
		case 1:
			v := sha512.Sum384(e)
			k = v[:]
		default:
			v := sha512.Sum512(e)
			k = v[:]
		}

		if round >= 63 && int(e[len(e)-1]) <= round-32 {
			break
		}
	}

	return k[:32]
}
