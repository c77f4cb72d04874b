package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/danmuck/simbridge/internal/forwarder"
	"github.com/go-resty/resty/v2"
	"github.com/gorilla/websocket"
)

var ErrEmptyPayload = errors.New("bridgeclient: empty payload")

// Result is what the request transport answered for one exchange.
type Result struct {
	Status  int
	Body    string
	Forward string
}

// decodePayload takes the payload from args when present, else from stdin. With
// hexMode the input is hex text; whitespace between byte pairs is ignored.
func decodePayload(args []string, hexMode bool, stdin io.Reader) ([]byte, error) {
	var raw []byte
	if len(args) > 0 {
		raw = []byte(strings.Join(args, " "))
	} else {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		raw = data
	}

	if hexMode {
		compact := strings.Join(strings.Fields(string(raw)), "")
		compact = strings.TrimPrefix(strings.TrimPrefix(compact, "0x"), "0X")
		decoded, err := hex.DecodeString(compact)
		if err != nil {
			return nil, fmt.Errorf("decode hex payload: %w", err)
		}
		raw = decoded
	}
	if len(raw) == 0 {
		return nil, ErrEmptyPayload
	}
	return raw, nil
}

// sendMessage delivers payload as one binary WebSocket message and closes cleanly.
func sendMessage(ctx context.Context, addr string, payload []byte, timeout time.Duration) error {
	dialer := websocket.Dialer{HandshakeTimeout: timeout}
	conn, _, err := dialer.DialContext(ctx, "ws://"+addr+"/", nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	_ = conn.SetWriteDeadline(time.Now().Add(timeout))
	if err := conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	closing := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, closing, time.Now().Add(timeout))
	return nil
}

// sendRequest posts payload to /Get or /Set and returns the acknowledgement.
func sendRequest(addr string, op forwarder.Op, payload []byte, timeout time.Duration) (Result, error) {
	path, err := requestPath(op)
	if err != nil {
		return Result{}, err
	}
	client := resty.New().
		SetBaseURL("http://" + addr).
		SetTimeout(timeout)
	resp, err := client.R().
		SetHeader("Content-Type", "application/octet-stream").
		SetBody(payload).
		Post(path)
	if err != nil {
		return Result{}, fmt.Errorf("post %s: %w", path, err)
	}
	res := Result{
		Status:  resp.StatusCode(),
		Body:    resp.String(),
		Forward: resp.Header().Get(forwarder.ForwardHeader),
	}
	if res.Status != http.StatusOK {
		return res, fmt.Errorf("post %s: unexpected status %d: %s", path, res.Status, res.Body)
	}
	return res, nil
}

func requestPath(op forwarder.Op) (string, error) {
	switch forwarder.Op(strings.ToLower(string(op))) {
	case forwarder.OpGet:
		return "/Get", nil
	case forwarder.OpSet:
		return "/Set", nil
	default:
		return "", fmt.Errorf("bridgeclient: unknown op %q", op)
	}
}
