package storage

import (
	"encoding/json"
	"errors"

	"qaoa/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

// CurrentVersion stamps new records.
func CurrentVersion() model.VersionedRecord {
	return model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion}
}

func EncodeRun(r model.Run) ([]byte, error) {
	return json.Marshal(r)
}

func DecodeRun(data []byte) (model.Run, error) {
	var run model.Run
	if err := json.Unmarshal(data, &run); err != nil {
		return model.Run{}, err
	}
	if err := checkVersion(run.VersionedRecord); err != nil {
		return model.Run{}, err
	}
	return run, nil
}

func EncodeSample(s model.Sample) ([]byte, error) {
	return json.Marshal(s)
}

func DecodeSample(data []byte) (model.Sample, error) {
	var sample model.Sample
	if err := json.Unmarshal(data, &sample); err != nil {
		return model.Sample{}, err
	}
	return sample, nil
}

func EncodeOptimization(o model.Optimization) ([]byte, error) {
	return json.Marshal(o)
}

func DecodeOptimization(data []byte) (model.Optimization, error) {
	var opt model.Optimization
	if err := json.Unmarshal(data, &opt); err != nil {
		return model.Optimization{}, err
	}
	if err := checkVersion(opt.VersionedRecord); err != nil {
		return model.Optimization{}, err
	}
	return opt, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}
