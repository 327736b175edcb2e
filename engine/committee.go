package engine

import (
	"crypto/ed25519"
	"encoding/binary"
	"fmt"
)

// Authority is one committee member.
type Authority struct {
	Index       uint32            `json:"index"`
	Name        Address           `json:"name"`
	PublicKey   ed25519.PublicKey `json:"public_key"`
	VotingPower uint64            `json:"voting_power"`

	private ed25519.PrivateKey
}

// Committee is the signing set of a single epoch.
type Committee struct {
	Epoch      uint64       `json:"epoch"`
	Members    []*Authority `json:"members"`
	TotalVotes uint64       `json:"total_votes"`
}

// votingPowerTotal matches the 10,000 basis-point convention.
const votingPowerTotal = 10_000

// newCommittee derives size authority keys for epoch from seed.
func newCommittee(seed int64, epoch uint64, size int) *Committee {
	if size <= 0 {
		size = 1
	}
	c := &Committee{Epoch: epoch, TotalVotes: votingPowerTotal}
	share := uint64(votingPowerTotal / size)
	for i := 0; i < size; i++ {
		var buf [8 + 8 + 4]byte
		binary.BigEndian.PutUint64(buf[0:], uint64(seed))
		binary.BigEndian.PutUint64(buf[8:], epoch)
		binary.BigEndian.PutUint32(buf[16:], uint32(i))
		keySeed := hashParts("Authority::", buf[:])
		priv := ed25519.NewKeyFromSeed(keySeed[:])
		pub := priv.Public().(ed25519.PublicKey)

		power := share
		if i == size-1 {
			power = votingPowerTotal - share*uint64(size-1)
		}
		c.Members = append(c.Members, &Authority{
			Index:       uint32(i),
			Name:        AddressFromPublicKey(pub),
			PublicKey:   pub,
			VotingPower: power,
			private:     priv,
		})
	}
	return c
}

// sign has every member sign msg and returns the concatenated signatures
// together with the signer indices.
func (c *Committee) sign(msg []byte) ([]byte, []uint32) {
	sigs := make([]byte, 0, len(c.Members)*ed25519.SignatureSize)
	signers := make([]uint32, 0, len(c.Members))
	for _, m := range c.Members {
		sigs = append(sigs, ed25519.Sign(m.private, msg)...)
		signers = append(signers, m.Index)
	}
	return sigs, signers
}

// Verify checks an aggregated signature produced by this committee.
func (c *Committee) Verify(msg []byte, sig AuthoritySignature) error {
	if sig.Epoch != c.Epoch {
		return fmt.Errorf("%w: signed in epoch %d, committee epoch %d", ErrInvalidSignature, sig.Epoch, c.Epoch)
	}
	if len(sig.Signature) != len(sig.SignersMap)*ed25519.SignatureSize {
		return fmt.Errorf("%w: %d signature bytes for %d signers", ErrInvalidSignature, len(sig.Signature), len(sig.SignersMap))
	}
	var votes uint64
	for i, idx := range sig.SignersMap {
		if int(idx) >= len(c.Members) {
			return fmt.Errorf("%w: unknown signer %d", ErrInvalidSignature, idx)
		}
		m := c.Members[idx]
		part := sig.Signature[i*ed25519.SignatureSize : (i+1)*ed25519.SignatureSize]
		if !ed25519.Verify(m.PublicKey, msg, part) {
			return fmt.Errorf("%w: signer %d", ErrInvalidSignature, idx)
		}
		votes += m.VotingPower
	}
	// quorum is 2f+1 of total voting power
	if votes*3 <= c.TotalVotes*2 {
		return fmt.Errorf("%w: %d of %d votes is below quorum", ErrInvalidSignature, votes, c.TotalVotes)
	}
	return nil
}

// Digest identifies the committee by its epoch and member keys.
func (c *Committee) Digest() Digest {
	parts := make([][]byte, 0, len(c.Members)+1)
	var epoch [8]byte
	binary.BigEndian.PutUint64(epoch[:], c.Epoch)
	parts = append(parts, epoch[:])
	for _, m := range c.Members {
		parts = append(parts, m.PublicKey)
	}
	return hashParts("Committee::", parts...)
}

// AddressFromPublicKey derives the account address owning pub.
func AddressFromPublicKey(pub ed25519.PublicKey) Address {
	return Address(hashParts("Address::", pub))
}
