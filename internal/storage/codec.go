package storage

import (
	"encoding/json"
	"errors"

	"pleroma/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

func EncodeSnapshot(s model.EngineSnapshot) ([]byte, error) {
	return json.Marshal(s)
}

func DecodeSnapshot(data []byte) (model.EngineSnapshot, error) {
	var snapshot model.EngineSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return model.EngineSnapshot{}, err
	}
	if err := checkVersion(snapshot.VersionedRecord); err != nil {
		return model.EngineSnapshot{}, err
	}
	return snapshot, nil
}

// EncodeContractionHistory stamps the current versions on each record
// before serializing, so callers never carry version bookkeeping.
func EncodeContractionHistory(records []model.ContractionRecord) ([]byte, error) {
	stamped := make([]model.ContractionRecord, len(records))
	copy(stamped, records)
	for i := range stamped {
		stamped[i].SchemaVersion = CurrentSchemaVersion
		stamped[i].CodecVersion = CurrentCodecVersion
	}
	return json.Marshal(stamped)
}

func DecodeContractionHistory(data []byte) ([]model.ContractionRecord, error) {
	var records []model.ContractionRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}
	for _, record := range records {
		if err := checkVersion(record.VersionedRecord); err != nil {
			return nil, err
		}
	}
	return records, nil
}

func EncodeErrorHistory(history []float64) ([]byte, error) {
	return json.Marshal(history)
}

func DecodeErrorHistory(data []byte) ([]float64, error) {
	var history []float64
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, err
	}
	return history, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}
