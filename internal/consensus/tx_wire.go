// Copyright 2025 Certen Protocol
//
// JSON wire encoding for ledger.Transaction, needed because ledger.Payload
// is an interface: CheckTx/FinalizeBlock receive raw transaction bytes from
// CometBFT's mempool and must recover the concrete payload type from a
// kind tag, the mempool wire format for every transaction this chain accepts
// in pkg/consensus/types.go.

package consensus

import (
	"encoding/json"
	"fmt"

	"github.com/certen/sp-cdr-settlement/internal/ledger"
	"github.com/certen/sp-cdr-settlement/internal/primitives"
)

type wireTx struct {
	Sender              primitives.Hash `json:"sender"`
	Recipient           primitives.Hash `json:"recipient"`
	Value               uint64          `json:"value"`
	Fee                 uint64          `json:"fee"`
	ValidityStartHeight uint64          `json:"validity_start_height"`
	Kind                string          `json:"kind"`
	Data                json.RawMessage `json:"data"`
	Signature           []byte          `json:"signature"`
	SignatureProof      []byte          `json:"signature_proof"`
}

func (w wireTx) toTransaction() (ledger.Transaction, error) {
	var data ledger.Payload
	switch w.Kind {
	case ledger.KindCDRRecord.String():
		var p ledger.CDRRecordPayload
		if err := json.Unmarshal(w.Data, &p); err != nil {
			return ledger.Transaction{}, err
		}
		data = p
	case ledger.KindSettlement.String():
		var p ledger.SettlementPayload
		if err := json.Unmarshal(w.Data, &p); err != nil {
			return ledger.Transaction{}, err
		}
		data = p
	case ledger.KindValidatorUpdate.String():
		var p ledger.ValidatorUpdatePayload
		if err := json.Unmarshal(w.Data, &p); err != nil {
			return ledger.Transaction{}, err
		}
		data = p
	default:
		return ledger.Transaction{}, fmt.Errorf("consensus: unknown transaction kind %q", w.Kind)
	}
	return ledger.Transaction{
		Sender:              w.Sender,
		Recipient:           w.Recipient,
		Value:               w.Value,
		Fee:                 w.Fee,
		ValidityStartHeight: w.ValidityStartHeight,
		Data:                data,
		Signature:           w.Signature,
		SignatureProof:      w.SignatureProof,
	}, nil
}

// EncodeTx serializes tx to the wire format consensus.decodeTx understands.
func EncodeTx(tx ledger.Transaction) ([]byte, error) {
	data, err := json.Marshal(tx.Data)
	if err != nil {
		return nil, err
	}
	w := wireTx{
		Sender:              tx.Sender,
		Recipient:           tx.Recipient,
		Value:               tx.Value,
		Fee:                 tx.Fee,
		ValidityStartHeight: tx.ValidityStartHeight,
		Kind:                tx.Data.Kind().String(),
		Data:                data,
		Signature:           tx.Signature,
		SignatureProof:      tx.SignatureProof,
	}
	return json.Marshal(w)
}
