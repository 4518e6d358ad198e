package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	savetypes "github.com/cbodonnell/quicksave/pkg/save/types"
	"github.com/klauspost/compress/zstd"
)

// payload is the zstd-compressed body stored next to the version and
// saved_at columns, which stay uncompressed for cheap metadata reads.
type payload struct {
	GameState       json.RawMessage           `json:"gameState"`
	ConfigOverrides savetypes.ConfigOverrides `json:"configOverrides,omitempty"`
}

func encodePayload(snapshot *savetypes.SaveSnapshot) ([]byte, error) {
	b, err := json.Marshal(payload{
		GameState:       snapshot.GameState,
		ConfigOverrides: snapshot.ConfigOverrides,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %v", err)
	}

	compressed := bytes.NewBuffer(nil)
	compWriter, err := zstd.NewWriter(compressed, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd writer: %v", err)
	}
	if _, err := compWriter.Write(b); err != nil {
		return nil, fmt.Errorf("failed to compress payload: %v", err)
	}
	if err := compWriter.Close(); err != nil {
		return nil, fmt.Errorf("failed to close zstd writer: %v", err)
	}

	return compressed.Bytes(), nil
}

func decodePayload(data []byte) (*payload, error) {
	compReader, err := zstd.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd reader: %v", err)
	}
	defer compReader.Close()

	b, err := io.ReadAll(compReader)
	if err != nil {
		return nil, fmt.Errorf("failed to read decompressed payload: %v", err)
	}

	p := &payload{}
	if err := json.Unmarshal(b, p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %v", err)
	}

	return p, nil
}
