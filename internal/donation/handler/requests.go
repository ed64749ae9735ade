package handler

import (
	"time"

	"aidledger/internal/donation/models"
	audit "aidledger/pkg/platform/audit"
)

type requestDonationRequest struct {
	ImplementingPartner string `json:"implementing_partner"`
	Amount              uint64 `json:"amount"`
	// Beneficiary may be empty; approval then binds the approving caller.
	Beneficiary string `json:"beneficiary,omitempty"`
}

type approveRequest struct {
	ApproverLabel string `json:"approver_label"`
	AttachedValue uint64 `json:"attached_value"`
}

type issueVoucherRequest struct {
	MerchantLabel string `json:"merchant_label"`
	Value         uint64 `json:"value"`
}

type useVoucherRequest struct {
	MerchantLabel   string `json:"merchant_label"`
	MerchantAccount string `json:"merchant_account"`
}

type createdResponse struct {
	ID uint64 `json:"id"`
}

type donationResponse struct {
	ID                  uint64 `json:"id"`
	ImplementingPartner string `json:"implementing_partner"`
	Amount              uint64 `json:"amount"`
	State               string `json:"state"`
	Sponsor             string `json:"sponsor"`
	Beneficiary         string `json:"beneficiary"`
}

type voucherResponse struct {
	MerchantLabel   string `json:"merchant_label"`
	Value           uint64 `json:"value"`
	MerchantAccount string `json:"merchant_account"`
	Used            bool   `json:"used"`
	State           string `json:"state"`
}

type auditEventResponse struct {
	Action          string `json:"action"`
	Category        string `json:"category"`
	Timestamp       string `json:"timestamp"`
	DonationID      uint64 `json:"donation_id"`
	Partner         string `json:"partner,omitempty"`
	Amount          uint64 `json:"amount,omitempty"`
	Sponsor         string `json:"sponsor,omitempty"`
	ApproverLabel   string `json:"approver_label,omitempty"`
	Beneficiary     string `json:"beneficiary,omitempty"`
	MerchantLabel   string `json:"merchant_label,omitempty"`
	Value           uint64 `json:"value,omitempty"`
	MerchantAccount string `json:"merchant_account,omitempty"`
	RequestID       string `json:"request_id,omitempty"`
}

func toDonationResponse(d *models.Donation) donationResponse {
	return donationResponse{
		ID:                  uint64(d.ID),
		ImplementingPartner: d.ImplementingPartner,
		Amount:              d.Amount,
		State:               d.State.String(),
		Sponsor:             d.Sponsor.String(),
		Beneficiary:         d.Beneficiary.String(),
	}
}

func toVoucherResponse(v *models.Voucher, state models.State) voucherResponse {
	return voucherResponse{
		MerchantLabel:   v.MerchantLabel,
		Value:           v.Value,
		MerchantAccount: v.MerchantAccount.String(),
		Used:            v.Used,
		State:           state.String(),
	}
}

func toAuditEventResponse(e audit.Event) auditEventResponse {
	return auditEventResponse{
		Action:          e.Action,
		Category:        string(e.Category),
		Timestamp:       e.Timestamp.Format(time.RFC3339Nano),
		DonationID:      uint64(e.DonationID),
		Partner:         e.Partner,
		Amount:          e.Amount,
		Sponsor:         e.Sponsor.String(),
		ApproverLabel:   e.ApproverLabel,
		Beneficiary:     e.Beneficiary.String(),
		MerchantLabel:   e.MerchantLabel,
		Value:           e.Value,
		MerchantAccount: e.MerchantAccount.String(),
		RequestID:       e.RequestID,
	}
}
