/**
 * Licensed to the Apache Software Foundation (ASF) under one
 * or more contributor license agreements.  See the NOTICE file
 * distributed with this work for additional information
 * regarding copyright ownership.  The ASF licenses this file
 * to you under the Apache License, Version 2.0 (the
 * "License"); you may not use this file except in compliance
 * with the License.  You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing,
 * software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
 * KIND, either express or implied.  See the License for the
 * specific language governing permissions and limitations
 * under the License.
 */

package blufi

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"fmt"
	"io"
	"math/big"
)

// RFC 2409 second Oakley group (1024-bit MODP).
const dhPrimeHex = "" +
	"FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD1" +
	"29024E088A67CC74020BBEA63B139B22514A08798E3404DD" +
	"EF9519B3CD3A431B302B0A6DF25F14374FE1356D6D51C245" +
	"E485B576625E7EC6F44C42E9A637ED6B0BFF5CB6F406B7ED" +
	"EE386BFB5A899FA5AE9F24117C4B1FE649286651ECE65381" +
	"FFFFFFFFFFFFFFFF"

const dhGenerator = 2

var dhPrime = func() *big.Int {
	p, ok := new(big.Int).SetString(dhPrimeHex, 16)
	if !ok {
		panic("invalid DH prime")
	}
	return p
}()

type dhKey struct {
	p    *big.Int
	g    *big.Int
	priv *big.Int
	pub  *big.Int
}

func newDhKey(rnd io.Reader) (*dhKey, error) {
	k := &dhKey{
		p: dhPrime,
		g: big.NewInt(dhGenerator),
	}

	// priv in [2, p-2].
	max := new(big.Int).Sub(k.p, big.NewInt(3))
	priv, err := randInt(rnd, max)
	if err != nil {
		return nil, err
	}
	k.priv = priv.Add(priv, big.NewInt(2))
	k.pub = new(big.Int).Exp(k.g, k.priv, k.p)

	return k, nil
}

func randInt(rnd io.Reader, max *big.Int) (*big.Int, error) {
	b := make([]byte, (max.BitLen()+7)/8)
	if _, err := io.ReadFull(rnd, b); err != nil {
		return nil, fmt.Errorf("failed to generate DH key: %s", err.Error())
	}

	n := new(big.Int).SetBytes(b)
	return n.Mod(n, max), nil
}

// The message carrying our DH parameters: p, g and the public key, each
// prefixed with a two-byte big-endian length.
func (k *dhKey) paramMsg() []byte {
	var b []byte
	for _, v := range [][]byte{k.p.Bytes(), k.g.Bytes(), k.pub.Bytes()} {
		b = append(b, uint8(len(v)>>8), uint8(len(v)))
		b = append(b, v...)
	}

	return b
}

func (k *dhKey) sharedSecret(peerPub []byte) ([]byte, error) {
	y := new(big.Int).SetBytes(peerPub)

	lim := new(big.Int).Sub(k.p, big.NewInt(1))
	if y.Cmp(big.NewInt(1)) <= 0 || y.Cmp(lim) >= 0 {
		return nil, fmt.Errorf("invalid peer public key")
	}

	return new(big.Int).Exp(y, k.priv, k.p).Bytes(), nil
}

// AES-128-CFB keyed with the MD5 digest of the DH secret.  Each frame is
// processed independently with an IV holding the frame's sequence number.
type frameCipher struct {
	block cipher.Block
}

func newFrameCipher(secret []byte) (*frameCipher, error) {
	key := md5.Sum(secret)
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}

	return &frameCipher{block: block}, nil
}

func (fc *frameCipher) iv(seq uint8) []byte {
	iv := make([]byte, aes.BlockSize)
	iv[0] = seq
	return iv
}

func (fc *frameCipher) encrypt(seq uint8, plain []byte) []byte {
	out := make([]byte, len(plain))
	cipher.NewCFBEncrypter(fc.block, fc.iv(seq)).XORKeyStream(out, plain)
	return out
}

func (fc *frameCipher) decrypt(seq uint8, ciphertext []byte) []byte {
	out := make([]byte, len(ciphertext))
	cipher.NewCFBDecrypter(fc.block, fc.iv(seq)).XORKeyStream(out, ciphertext)
	return out
}
