package net

import (
	"encoding/binary"
	"errors"

	"skoll/internal/common"
)

var (
	ErrInvalidMessageType = errors.New("invalid message type")
	ErrMessageTooShort    = errors.New("message too short")
	ErrFieldTooLong       = errors.New("field exceeds length prefix")
)

// maxFieldLen bounds every variable-length string field; the wire format
// prefixes them with a single length byte.
const maxFieldLen = 255

type MessageType uint16

const (
	Heartbeat MessageType = iota
	RegisterAsset
	Deposit
	Withdraw
	NewOrder
)

type Message interface {
	GetType() MessageType
}

// Message format constants. Every message starts with a 2-byte type; the
// fixed part of each payload is listed below, followed by length-prefixed
// variable strings.
const (
	BaseMessageHeaderLen     = 2
	RegisterAssetHeaderLen   = common.SymbolLen + 1 + 1
	TransferMessageHeaderLen = common.SymbolLen + 8 + 1
	NewOrderMessageHeaderLen = 1 + 1 + common.SymbolLen + 8 + 8 + 1
)

// Generic message type.
type BaseMessage struct {
	TypeOf MessageType // 2 bytes
}

func (m BaseMessage) GetType() MessageType {
	return m.TypeOf
}

func parseMessage(msg []byte) (Message, error) {
	if len(msg) < BaseMessageHeaderLen {
		return BaseMessage{}, ErrMessageTooShort
	}

	typeOf := MessageType(binary.BigEndian.Uint16(msg[0:2]))
	msg = msg[2:]
	switch typeOf {
	case RegisterAsset:
		return parseRegisterAsset(msg)
	case Deposit, Withdraw:
		return parseTransfer(typeOf, msg)
	case NewOrder:
		return parseNewOrder(msg)
	default:
		return BaseMessage{}, ErrInvalidMessageType
	}
}

// RegisterAssetMessage asks the exchange to list a new asset. Only honored
// when the caller is the admin account.
type RegisterAssetMessage struct {
	BaseMessage
	Symbol common.Symbol      // 8 bytes
	Handle common.TokenHandle // length-prefixed (1 byte)
	Caller common.AccountID   // length-prefixed (1 byte)
}

func parseRegisterAsset(msg []byte) (RegisterAssetMessage, error) {
	m := RegisterAssetMessage{BaseMessage: BaseMessage{TypeOf: RegisterAsset}}

	if len(msg) < RegisterAssetHeaderLen {
		return RegisterAssetMessage{}, ErrMessageTooShort
	}
	copy(m.Symbol[:], msg[0:common.SymbolLen])
	handleLen := int(msg[common.SymbolLen])
	callerLen := int(msg[common.SymbolLen+1])

	rest := msg[RegisterAssetHeaderLen:]
	if len(rest) < handleLen+callerLen {
		return RegisterAssetMessage{}, ErrMessageTooShort
	}
	m.Handle = common.TokenHandle(rest[:handleLen])
	m.Caller = common.AccountID(rest[handleLen : handleLen+callerLen])

	return m, nil
}

func (m RegisterAssetMessage) Encode() ([]byte, error) {
	if len(m.Handle) > maxFieldLen || len(m.Caller) > maxFieldLen {
		return nil, ErrFieldTooLong
	}
	buf := make([]byte, BaseMessageHeaderLen+RegisterAssetHeaderLen, 64)
	binary.BigEndian.PutUint16(buf[0:2], uint16(RegisterAsset))
	copy(buf[2:], m.Symbol[:])
	buf[2+common.SymbolLen] = uint8(len(m.Handle))
	buf[2+common.SymbolLen+1] = uint8(len(m.Caller))
	buf = append(buf, m.Handle...)
	buf = append(buf, m.Caller...)
	return buf, nil
}

// TransferMessage carries a deposit or withdrawal. For a native deposit the
// amount field models the value attached to the call.
type TransferMessage struct {
	BaseMessage
	Symbol  common.Symbol    // 8 bytes
	Amount  uint64           // 8 bytes
	Account common.AccountID // length-prefixed (1 byte)
}

func parseTransfer(typeOf MessageType, msg []byte) (TransferMessage, error) {
	m := TransferMessage{BaseMessage: BaseMessage{TypeOf: typeOf}}

	if len(msg) < TransferMessageHeaderLen {
		return TransferMessage{}, ErrMessageTooShort
	}
	copy(m.Symbol[:], msg[0:common.SymbolLen])
	m.Amount = binary.BigEndian.Uint64(msg[common.SymbolLen : common.SymbolLen+8])
	accountLen := int(msg[common.SymbolLen+8])

	rest := msg[TransferMessageHeaderLen:]
	if len(rest) < accountLen {
		return TransferMessage{}, ErrMessageTooShort
	}
	m.Account = common.AccountID(rest[:accountLen])

	return m, nil
}

func (m TransferMessage) Encode() ([]byte, error) {
	if len(m.Account) > maxFieldLen {
		return nil, ErrFieldTooLong
	}
	buf := make([]byte, BaseMessageHeaderLen+TransferMessageHeaderLen, 64)
	binary.BigEndian.PutUint16(buf[0:2], uint16(m.TypeOf))
	copy(buf[2:], m.Symbol[:])
	binary.BigEndian.PutUint64(buf[2+common.SymbolLen:], m.Amount)
	buf[2+common.SymbolLen+8] = uint8(len(m.Account))
	buf = append(buf, m.Account...)
	return buf, nil
}

// NewOrderMessage places a limit or market order. Price is ignored for
// market orders.
type NewOrderMessage struct {
	BaseMessage
	Kind    common.OrderKind // 1 byte
	Side    common.Side      // 1 byte
	Symbol  common.Symbol    // 8 bytes
	Amount  uint64           // 8 bytes
	Price   uint64           // 8 bytes
	Account common.AccountID // length-prefixed (1 byte)
}

func parseNewOrder(msg []byte) (NewOrderMessage, error) {
	m := NewOrderMessage{BaseMessage: BaseMessage{TypeOf: NewOrder}}

	if len(msg) < NewOrderMessageHeaderLen {
		return NewOrderMessage{}, ErrMessageTooShort
	}
	m.Kind = common.OrderKind(msg[0])
	m.Side = common.Side(msg[1])
	if m.Kind > common.MarketOrder || m.Side > common.Sell {
		return NewOrderMessage{}, ErrInvalidMessageType
	}
	copy(m.Symbol[:], msg[2:2+common.SymbolLen])
	m.Amount = binary.BigEndian.Uint64(msg[2+common.SymbolLen:])
	m.Price = binary.BigEndian.Uint64(msg[2+common.SymbolLen+8:])
	accountLen := int(msg[2+common.SymbolLen+16])

	rest := msg[NewOrderMessageHeaderLen:]
	if len(rest) < accountLen {
		return NewOrderMessage{}, ErrMessageTooShort
	}
	m.Account = common.AccountID(rest[:accountLen])

	return m, nil
}

func (m NewOrderMessage) Encode() ([]byte, error) {
	if len(m.Account) > maxFieldLen {
		return nil, ErrFieldTooLong
	}
	buf := make([]byte, BaseMessageHeaderLen+NewOrderMessageHeaderLen, 64)
	binary.BigEndian.PutUint16(buf[0:2], uint16(NewOrder))
	buf[2] = byte(m.Kind)
	buf[3] = byte(m.Side)
	copy(buf[4:], m.Symbol[:])
	binary.BigEndian.PutUint64(buf[4+common.SymbolLen:], m.Amount)
	binary.BigEndian.PutUint64(buf[4+common.SymbolLen+8:], m.Price)
	buf[4+common.SymbolLen+16] = uint8(len(m.Account))
	buf = append(buf, m.Account...)
	return buf, nil
}

// Report is the server's reply to any message: a status byte, the resting
// order id for limit placements, the filled quantity for market orders, and
// an error string when the operation was rejected.
type Report struct {
	OK      bool   // 1 byte
	OrderID uint64 // 8 bytes
	Filled  uint64 // 8 bytes
	Err     string // length-prefixed (2 bytes)
}

const ReportHeaderLen = 1 + 8 + 8 + 2

func (r Report) Serialize() []byte {
	buf := make([]byte, ReportHeaderLen+len(r.Err))
	if r.OK {
		buf[0] = 1
	}
	binary.BigEndian.PutUint64(buf[1:9], r.OrderID)
	binary.BigEndian.PutUint64(buf[9:17], r.Filled)
	binary.BigEndian.PutUint16(buf[17:19], uint16(len(r.Err)))
	copy(buf[ReportHeaderLen:], r.Err)
	return buf
}

func DecodeReport(msg []byte) (Report, error) {
	if len(msg) < ReportHeaderLen {
		return Report{}, ErrMessageTooShort
	}
	r := Report{
		OK:      msg[0] == 1,
		OrderID: binary.BigEndian.Uint64(msg[1:9]),
		Filled:  binary.BigEndian.Uint64(msg[9:17]),
	}
	errLen := int(binary.BigEndian.Uint16(msg[17:19]))
	if len(msg) < ReportHeaderLen+errLen {
		return Report{}, ErrMessageTooShort
	}
	r.Err = string(msg[ReportHeaderLen : ReportHeaderLen+errLen])
	return r, nil
}
