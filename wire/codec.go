package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrMalformed is returned when a datagram's length prefixes or enum ordinals
// don't describe a well-formed Request/Response.
var ErrMalformed = errors.New("wire: malformed message")

// MaxDatagramSize is the buffer size assumed by the transport layer (SPEC_FULL.md §6).
const MaxDatagramSize = 1024

// MarshalRequest encodes r per the fixed field order: requestId, op, length, offset,
// monitorDurationMs, pathLen+path, payloadLen+payload, all big-endian.
func MarshalRequest(r *Request) []byte {
	buf := new(bytes.Buffer)
	buf.Grow(MaxDatagramSize)

	_ = binary.Write(buf, binary.BigEndian, r.RequestId)
	_ = binary.Write(buf, binary.BigEndian, uint32(r.Op))
	_ = binary.Write(buf, binary.BigEndian, r.Length)
	_ = binary.Write(buf, binary.BigEndian, r.Offset)
	_ = binary.Write(buf, binary.BigEndian, r.MonitorDurationMs)

	pathBytes := []byte(r.Path)
	_ = binary.Write(buf, binary.BigEndian, uint32(len(pathBytes)))
	buf.Write(pathBytes)

	_ = binary.Write(buf, binary.BigEndian, uint32(len(r.Payload)))
	buf.Write(r.Payload)

	return buf.Bytes()
}

// UnmarshalRequest is the inverse of MarshalRequest. It fails with ErrMalformed when
// any length prefix overruns the remaining bytes or the op ordinal is unrecognized.
func UnmarshalRequest(data []byte) (*Request, error) {
	r := bytes.NewReader(data)
	req := &Request{}

	if err := binary.Read(r, binary.BigEndian, &req.RequestId); err != nil {
		return nil, fmt.Errorf("%w: requestId: %v", ErrMalformed, err)
	}
	var op uint32
	if err := binary.Read(r, binary.BigEndian, &op); err != nil {
		return nil, fmt.Errorf("%w: op: %v", ErrMalformed, err)
	}
	req.Op = Op(op)
	if !validOp(req.Op) {
		return nil, fmt.Errorf("%w: unrecognized op ordinal %d", ErrMalformed, op)
	}
	if err := binary.Read(r, binary.BigEndian, &req.Length); err != nil {
		return nil, fmt.Errorf("%w: length: %v", ErrMalformed, err)
	}
	if err := binary.Read(r, binary.BigEndian, &req.Offset); err != nil {
		return nil, fmt.Errorf("%w: offset: %v", ErrMalformed, err)
	}
	if err := binary.Read(r, binary.BigEndian, &req.MonitorDurationMs); err != nil {
		return nil, fmt.Errorf("%w: monitorDurationMs: %v", ErrMalformed, err)
	}

	path, err := readLenPrefixed(r)
	if err != nil {
		return nil, fmt.Errorf("%w: path: %v", ErrMalformed, err)
	}
	req.Path = string(path)

	payload, err := readLenPrefixed(r)
	if err != nil {
		return nil, fmt.Errorf("%w: payload: %v", ErrMalformed, err)
	}
	req.Payload = payload

	return req, nil
}

// MarshalResponse encodes r per the fixed field order: statusCode, payloadLen+payload,
// messageLen+message, serverLastModifiedMs, pathLen+path, all big-endian.
func MarshalResponse(resp *Response) []byte {
	buf := new(bytes.Buffer)
	buf.Grow(MaxDatagramSize)

	_ = binary.Write(buf, binary.BigEndian, uint32(resp.Status))

	_ = binary.Write(buf, binary.BigEndian, uint32(len(resp.Payload)))
	buf.Write(resp.Payload)

	messageBytes := []byte(resp.Message)
	_ = binary.Write(buf, binary.BigEndian, uint32(len(messageBytes)))
	buf.Write(messageBytes)

	_ = binary.Write(buf, binary.BigEndian, resp.ServerLastModifiedMs)

	pathBytes := []byte(resp.Path)
	_ = binary.Write(buf, binary.BigEndian, uint32(len(pathBytes)))
	buf.Write(pathBytes)

	return buf.Bytes()
}

// UnmarshalResponse is the inverse of MarshalResponse.
func UnmarshalResponse(data []byte) (*Response, error) {
	r := bytes.NewReader(data)
	resp := &Response{}

	var status uint32
	if err := binary.Read(r, binary.BigEndian, &status); err != nil {
		return nil, fmt.Errorf("%w: status: %v", ErrMalformed, err)
	}
	resp.Status = Status(status)
	if !validStatus(resp.Status) {
		return nil, fmt.Errorf("%w: unrecognized status ordinal %d", ErrMalformed, status)
	}

	payload, err := readLenPrefixed(r)
	if err != nil {
		return nil, fmt.Errorf("%w: payload: %v", ErrMalformed, err)
	}
	resp.Payload = payload

	message, err := readLenPrefixed(r)
	if err != nil {
		return nil, fmt.Errorf("%w: message: %v", ErrMalformed, err)
	}
	resp.Message = string(message)

	if err := binary.Read(r, binary.BigEndian, &resp.ServerLastModifiedMs); err != nil {
		return nil, fmt.Errorf("%w: serverLastModifiedMs: %v", ErrMalformed, err)
	}

	path, err := readLenPrefixed(r)
	if err != nil {
		return nil, fmt.Errorf("%w: path: %v", ErrMalformed, err)
	}
	resp.Path = string(path)

	return resp, nil
}

func readLenPrefixed(r *bytes.Reader) ([]byte, error) {
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return nil, err
	}
	if int(length) > r.Len() {
		return nil, fmt.Errorf("length prefix %d exceeds remaining %d bytes", length, r.Len())
	}
	if length == 0 {
		return []byte{}, nil
	}
	out := make([]byte, length)
	if _, err := r.Read(out); err != nil {
		return nil, err
	}
	return out, nil
}
