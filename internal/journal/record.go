package journal

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/alanyoungcy/socialbet/internal/domain"
	"github.com/alanyoungcy/socialbet/internal/exchange"
)

// Record layout: [len:4 LE][crc32:4 LE][body], where body is the command in
// protobuf wire format. Field numbers are part of the on-disk format.
const (
	fieldSeq           protowire.Number = 1
	fieldOp            protowire.Number = 2
	fieldCaller        protowire.Number = 3
	fieldAt            protowire.Number = 4
	fieldAccount       protowire.Number = 5
	fieldIDs           protowire.Number = 6
	fieldID            protowire.Number = 7
	fieldMarketIndex   protowire.Number = 8
	fieldMarketIndexes protowire.Number = 9
	fieldMarketTypes   protowire.Number = 10
	fieldMarketData    protowire.Number = 11
	fieldContentHashes protowire.Number = 12
	fieldStarts        protowire.Number = 13
	fieldOutcome       protowire.Number = 14
	fieldOutcomes      protowire.Number = 15
	fieldAmount        protowire.Number = 16
	fieldPrice         protowire.Number = 17
	fieldExpiration    protowire.Number = 18
)

const headerLen = 8

// Encode frames cmd with its sequence number.
func Encode(seq uint64, c exchange.Command) []byte {
	var b []byte
	b = appendUint(b, fieldSeq, seq)
	b = appendUint(b, fieldOp, uint64(c.Op))
	b = appendAddress(b, fieldCaller, c.Caller)
	b = appendTime(b, fieldAt, c.At)
	b = appendAddress(b, fieldAccount, c.Account)
	for _, id := range c.IDs {
		b = protowire.AppendTag(b, fieldIDs, protowire.VarintType)
		b = protowire.AppendVarint(b, id)
	}
	b = appendUint(b, fieldID, c.ID)
	b = appendInt(b, fieldMarketIndex, int64(c.MarketIndex))
	for _, idx := range c.MarketIndexes {
		b = protowire.AppendTag(b, fieldMarketIndexes, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeZigZag(int64(idx)))
	}
	for _, t := range c.MarketTypes {
		b = protowire.AppendTag(b, fieldMarketTypes, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(t))
	}
	for _, d := range c.MarketData {
		b = protowire.AppendTag(b, fieldMarketData, protowire.BytesType)
		b = protowire.AppendBytes(b, d)
	}
	for _, h := range c.ContentHashes {
		b = protowire.AppendTag(b, fieldContentHashes, protowire.BytesType)
		b = protowire.AppendBytes(b, h[:])
	}
	for _, t := range c.Starts {
		b = protowire.AppendTag(b, fieldStarts, protowire.BytesType)
		b = protowire.AppendBytes(b, encodeTime(t))
	}
	b = appendUint(b, fieldOutcome, uint64(c.Outcome))
	for _, o := range c.Outcomes {
		b = protowire.AppendTag(b, fieldOutcomes, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(o))
	}
	b = appendUint(b, fieldAmount, c.Amount)
	b = appendUint(b, fieldPrice, c.Price)
	b = appendTime(b, fieldExpiration, c.Expiration)

	out := make([]byte, headerLen, headerLen+len(b))
	binary.LittleEndian.PutUint32(out[:4], uint32(len(b)))
	binary.LittleEndian.PutUint32(out[4:8], crc32.ChecksumIEEE(b))
	return append(out, b...)
}

// Decode verifies the frame checksum and returns the command and its sequence
// number.
func Decode(data []byte) (uint64, exchange.Command, error) {
	var c exchange.Command
	if len(data) < headerLen {
		return 0, c, fmt.Errorf("%w: short header", domain.ErrJournalCorrupt)
	}
	n := binary.LittleEndian.Uint32(data[:4])
	body := data[headerLen:]
	if int(n) != len(body) {
		return 0, c, fmt.Errorf("%w: length %d, have %d", domain.ErrJournalCorrupt, n, len(body))
	}
	if crc32.ChecksumIEEE(body) != binary.LittleEndian.Uint32(data[4:8]) {
		return 0, c, fmt.Errorf("%w: checksum mismatch", domain.ErrJournalCorrupt)
	}

	var seq uint64
	for len(body) > 0 {
		num, typ, tn := protowire.ConsumeTag(body)
		if tn < 0 {
			return 0, c, corrupt(protowire.ParseError(tn))
		}
		body = body[tn:]

		var (
			v   uint64
			raw []byte
			m   int
		)
		switch typ {
		case protowire.VarintType:
			v, m = protowire.ConsumeVarint(body)
		case protowire.BytesType:
			raw, m = protowire.ConsumeBytes(body)
		default:
			m = protowire.ConsumeFieldValue(num, typ, body)
		}
		if m < 0 {
			return 0, c, corrupt(protowire.ParseError(m))
		}
		body = body[m:]

		switch num {
		case fieldSeq:
			seq = v
		case fieldOp:
			c.Op = exchange.Op(v)
		case fieldCaller:
			c.Caller = common.BytesToAddress(raw)
		case fieldAt:
			c.At = decodeTime(raw)
		case fieldAccount:
			c.Account = common.BytesToAddress(raw)
		case fieldIDs:
			c.IDs = append(c.IDs, v)
		case fieldID:
			c.ID = v
		case fieldMarketIndex:
			c.MarketIndex = int(protowire.DecodeZigZag(v))
		case fieldMarketIndexes:
			c.MarketIndexes = append(c.MarketIndexes, int(protowire.DecodeZigZag(v)))
		case fieldMarketTypes:
			c.MarketTypes = append(c.MarketTypes, domain.MarketType(v))
		case fieldMarketData:
			var d []byte
			if len(raw) > 0 {
				d = append([]byte(nil), raw...)
			}
			c.MarketData = append(c.MarketData, d)
		case fieldContentHashes:
			c.ContentHashes = append(c.ContentHashes, common.BytesToHash(raw))
		case fieldStarts:
			c.Starts = append(c.Starts, decodeTime(raw))
		case fieldOutcome:
			c.Outcome = domain.Outcome(v)
		case fieldOutcomes:
			c.Outcomes = append(c.Outcomes, domain.Outcome(v))
		case fieldAmount:
			c.Amount = v
		case fieldPrice:
			c.Price = v
		case fieldExpiration:
			c.Expiration = decodeTime(raw)
		}
	}
	return seq, c, nil
}

func corrupt(err error) error {
	return fmt.Errorf("%w: %v", domain.ErrJournalCorrupt, err)
}

func appendUint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendInt(b []byte, num protowire.Number, v int64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeZigZag(v))
}

func appendAddress(b []byte, num protowire.Number, a common.Address) []byte {
	if a == (common.Address{}) {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, a[:])
}

func appendTime(b []byte, num protowire.Number, t time.Time) []byte {
	if t.IsZero() {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, encodeTime(t))
}

// encodeTime packs t as zigzag unix seconds followed by nanoseconds.
func encodeTime(t time.Time) []byte {
	b := protowire.AppendVarint(nil, protowire.EncodeZigZag(t.Unix()))
	return protowire.AppendVarint(b, uint64(t.Nanosecond()))
}

func decodeTime(raw []byte) time.Time {
	sec, n := protowire.ConsumeVarint(raw)
	if n < 0 {
		return time.Time{}
	}
	nsec, m := protowire.ConsumeVarint(raw[n:])
	if m < 0 {
		nsec = 0
	}
	return time.Unix(protowire.DecodeZigZag(sec), int64(nsec)).UTC()
}
