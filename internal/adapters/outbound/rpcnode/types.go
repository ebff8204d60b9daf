package rpcnode

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/archon-research/stl-trade/internal/domain/entity"
	"github.com/archon-research/stl-trade/internal/ports/outbound"
)

const encodingBase64 = "base64"

// accountJSON is an account as returned with base64 encoding.
type accountJSON struct {
	Data     []string `json:"data"`
	Owner    string   `json:"owner"`
	Lamports uint64   `json:"lamports"`
}

func (a *accountJSON) decode(address entity.Address) (*outbound.AccountInfo, error) {
	if len(a.Data) != 2 || a.Data[1] != encodingBase64 {
		return nil, fmt.Errorf("account %s: unexpected data encoding %v", address, a.Data)
	}
	data, err := base64.StdEncoding.DecodeString(a.Data[0])
	if err != nil {
		return nil, fmt.Errorf("account %s: %w", address, err)
	}
	owner, err := entity.ParseAddress(a.Owner)
	if err != nil {
		return nil, fmt.Errorf("account %s owner: %w", address, err)
	}
	return &outbound.AccountInfo{
		Address:  address,
		Owner:    owner,
		Lamports: a.Lamports,
		Data:     data,
	}, nil
}

type contextValue[T any] struct {
	Context struct {
		Slot uint64 `json:"slot"`
	} `json:"context"`
	Value T `json:"value"`
}

type keyedAccountJSON struct {
	Pubkey  string      `json:"pubkey"`
	Account accountJSON `json:"account"`
}

type memcmpJSON struct {
	Offset uint64 `json:"offset"`
	Bytes  string `json:"bytes"`
}

type filterJSON struct {
	Memcmp   *memcmpJSON `json:"memcmp,omitempty"`
	DataSize uint64      `json:"dataSize,omitempty"`
}

type signatureStatusJSON struct {
	Slot               uint64          `json:"slot"`
	Confirmations      *uint64         `json:"confirmations"`
	Err                json.RawMessage `json:"err"`
	ConfirmationStatus string          `json:"confirmationStatus"`
}

func (s *signatureStatusJSON) failed() bool {
	return len(s.Err) > 0 && string(s.Err) != "null"
}

type accountsConfigJSON struct {
	Addresses []string `json:"addresses"`
	Encoding  string   `json:"encoding"`
}

type bundleTxResultJSON struct {
	Err                   json.RawMessage `json:"err"`
	Logs                  []string        `json:"logs"`
	PostExecutionAccounts []*accountJSON  `json:"postExecutionAccounts"`
}

type bundleResultJSON struct {
	Summary            json.RawMessage      `json:"summary"`
	TransactionResults []bundleTxResultJSON `json:"transactionResults"`
}

// failure returns the summary's failure reason, or "" when the bundle succeeded.
func (b *bundleResultJSON) failure() string {
	var ok string
	if err := json.Unmarshal(b.Summary, &ok); err == nil {
		if ok == "succeeded" {
			return ""
		}
		return ok
	}
	var failed struct {
		Failed struct {
			Error json.RawMessage `json:"error"`
		} `json:"failed"`
	}
	if err := json.Unmarshal(b.Summary, &failed); err == nil && len(failed.Failed.Error) > 0 {
		return string(failed.Failed.Error)
	}
	return string(b.Summary)
}
