// Package merkle builds and verifies the payout commitments registered with
// the claim ledger. Leaves are double-keccak hashes over a fixed-layout
// encoding of (stealth address, token, amount); interior nodes hash the
// lexicographically sorted pair of their children so that proof verification
// never needs to know left from right. The layout matches the sorted-pair,
// double-hashed trees produced by the standard off-chain commitment tooling;
// any divergence here makes every proof fail.
package merkle

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var (
	// ErrInvalidProofShape reports a proof whose elements cannot form a
	// valid sibling path.
	ErrInvalidProofShape = errors.New("merkle: invalid proof shape")

	errLeafAmount = errors.New("merkle: leaf amount must fit an unsigned 256-bit integer")
	errLeafIndex  = errors.New("merkle: leaf index out of range")
	errEmptyTree  = errors.New("merkle: tree has no leaves")
)

// maxProofDepth bounds decoded proofs; 64 siblings already covers any tree
// this ledger could register.
const maxProofDepth = 64

// Leaf computes the 32-byte commitment leaf for a single payout entry. The
// canonical encoding is 20-byte address, 20-byte token, 32-byte big-endian
// amount, hashed twice.
func Leaf(stealthAddr [20]byte, token [20]byte, amount *big.Int) ([32]byte, error) {
	if amount == nil {
		amount = new(big.Int)
	}
	if amount.Sign() < 0 || amount.BitLen() > 256 {
		return [32]byte{}, errLeafAmount
	}
	enc := make([]byte, 72)
	copy(enc[0:20], stealthAddr[:])
	copy(enc[20:40], token[:])
	amount.FillBytes(enc[40:72])
	var out [32]byte
	copy(out[:], ethcrypto.Keccak256(ethcrypto.Keccak256(enc)))
	return out, nil
}

// CombinePair hashes two sibling nodes in sorted order, so the combination is
// independent of which child sat on which side.
func CombinePair(a, b [32]byte) [32]byte {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	var out [32]byte
	copy(out[:], ethcrypto.Keccak256(a[:], b[:]))
	return out
}

// Tree is a binary Merkle tree over a fixed leaf set. An odd node at any
// level is promoted unchanged to the level above. A single-leaf tree has an
// empty proof and root equal to the leaf.
type Tree struct {
	levels [][][32]byte
}

// NewTree builds the full tree bottom-up from the given leaves.
func NewTree(leaves [][32]byte) (*Tree, error) {
	if len(leaves) == 0 {
		return nil, errEmptyTree
	}
	level := make([][32]byte, len(leaves))
	copy(level, leaves)
	levels := [][][32]byte{level}
	for len(level) > 1 {
		next := make([][32]byte, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 < len(level) {
				next = append(next, CombinePair(level[i], level[i+1]))
			} else {
				next = append(next, level[i])
			}
		}
		levels = append(levels, next)
		level = next
	}
	return &Tree{levels: levels}, nil
}

// Root returns the commitment root.
func (t *Tree) Root() [32]byte {
	top := t.levels[len(t.levels)-1]
	return top[0]
}

// Proof returns the ordered sibling path for the leaf at index i, leaf level
// first. Levels where the node has no sibling contribute nothing.
func (t *Tree) Proof(i int) ([][32]byte, error) {
	if i < 0 || i >= len(t.levels[0]) {
		return nil, fmt.Errorf("%w: %d", errLeafIndex, i)
	}
	proof := make([][32]byte, 0, len(t.levels)-1)
	idx := i
	for _, level := range t.levels[:len(t.levels)-1] {
		sibling := idx ^ 1
		if sibling < len(level) {
			proof = append(proof, level[sibling])
		}
		idx /= 2
	}
	return proof, nil
}

// VerifyProof replays the sibling path from leaf to root. A proof of the
// wrong shape simply fails to reproduce the root and verifies false.
func VerifyProof(leaf [32]byte, proof [][32]byte, root [32]byte) bool {
	node := leaf
	for _, sibling := range proof {
		node = CombinePair(node, sibling)
	}
	return node == root
}

// DecodeProof converts raw proof elements, as received from a claim
// submitter, into sibling hashes. Elements that are not exactly 32 bytes or
// paths deeper than any representable tree fail with ErrInvalidProofShape.
func DecodeProof(items [][]byte) ([][32]byte, error) {
	if len(items) > maxProofDepth {
		return nil, fmt.Errorf("%w: depth %d exceeds maximum %d", ErrInvalidProofShape, len(items), maxProofDepth)
	}
	proof := make([][32]byte, len(items))
	for i, item := range items {
		if len(item) != 32 {
			return nil, fmt.Errorf("%w: element %d is %d bytes", ErrInvalidProofShape, i, len(item))
		}
		copy(proof[i][:], item)
	}
	return proof, nil
}
