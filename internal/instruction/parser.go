// ==============================================================================
// INSTRUCTION PARSER - internal/instruction/parser.go
// ==============================================================================
package instruction

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"vubank/internal/domain"
	pkgerrors "vubank/pkg/errors"
	"vubank/pkg/logger"
	"vubank/pkg/validator"
)

// Parser turns a raw XML transfer instruction into a canonical
// domain.PaymentInstruction. Parsing has no side effects and failures are
// reported, never retried locally.
type Parser struct {
	maxPayloadBytes   int
	maxCommentsLength int
	validator         *validator.Validator
	logger            logger.Logger
}

func NewParser(maxPayloadBytes, maxCommentsLength int, val *validator.Validator, log logger.Logger) *Parser {
	return &Parser{
		maxPayloadBytes:   maxPayloadBytes,
		maxCommentsLength: maxCommentsLength,
		validator:         val,
		logger:            log,
	}
}

// Parse extracts the instruction fields and validates them, reporting the
// first violated constraint.
func (p *Parser) Parse(payload, requestID, apiClient string) (*domain.PaymentInstruction, error) {
	if strings.TrimSpace(payload) == "" {
		return nil, pkgerrors.Wrap(pkgerrors.ErrValidation, "instruction payload cannot be empty")
	}

	if len(payload) > p.maxPayloadBytes {
		return nil, pkgerrors.Wrap(pkgerrors.ErrValidation, "instruction payload exceeds maximum size limit")
	}

	instr := &domain.PaymentInstruction{
		PayeeName:     extractValue(payload, "PayeeName"),
		IFSCCode:      extractValue(payload, "IFSCCode"),
		PaymentType:   extractValue(payload, "PaymentType"),
		CustomerName:  extractValue(payload, "CustomerName"),
		FromAccountNo: extractValue(payload, "FromAccountNo"),
		ToAccountNo:   extractValue(payload, "ToAccountNo"),
		BranchName:    extractValue(payload, "BranchName"),
		Comments:      extractValue(payload, "Comments"),
		RequestID:     requestID,
		APIClient:     apiClient,
	}

	if amountStr := extractValue(payload, "Amount"); amountStr != "" {
		amount, err := decimal.NewFromString(amountStr)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.ErrValidation, "invalid amount")
		}
		instr.Amount = amount
	}

	if dateTimeStr := extractValue(payload, "DateTime"); dateTimeStr != "" {
		initiatedAt, err := time.Parse(time.RFC3339, dateTimeStr)
		if err != nil {
			instr.InitiatedAt = time.Now()
			p.logger.Warn("Could not parse instruction datetime, using current time", map[string]interface{}{
				"x_request_id": requestID,
				"error":        err.Error(),
			})
		} else {
			instr.InitiatedAt = initiatedAt
		}
	} else {
		instr.InitiatedAt = time.Now()
	}

	if err := p.validator.ValidateFirst(instr); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.ErrValidation, err.Error())
	}

	if len(instr.Comments) > p.maxCommentsLength {
		return nil, pkgerrors.Wrap(pkgerrors.ErrValidation,
			fmt.Sprintf("comments exceed maximum length of %d characters", p.maxCommentsLength))
	}

	p.logger.Debug("Parsed payment instruction", map[string]interface{}{
		"x_request_id": requestID,
		"amount":       instr.Amount.String(),
		"from_account": instr.FromAccountNo,
		"to_account":   instr.ToAccountNo,
	})

	return instr, nil
}

// extractValue pulls the text between <tag> and </tag>. The instruction
// format is a flat element list, so positional extraction is sufficient.
func extractValue(payload, tag string) string {
	startTag := "<" + tag + ">"
	endTag := "</" + tag + ">"

	start := strings.Index(payload, startTag)
	if start == -1 {
		return ""
	}

	valueStart := start + len(startTag)
	end := strings.Index(payload[valueStart:], endTag)
	if end == -1 {
		return ""
	}

	return strings.TrimSpace(payload[valueStart : valueStart+end])
}
