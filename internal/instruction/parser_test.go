package instruction

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	pkgerrors "vubank/pkg/errors"
	"vubank/pkg/logger"
	"vubank/pkg/validator"
)

func newTestParser() *Parser {
	return NewParser(1<<20, 500, validator.New(), logger.NewNop())
}

func validPayload() string {
	return `<PaymentInstruction>
		<PayeeName>Ravi Kumar</PayeeName>
		<IFSCCode>HDFC0001234</IFSCCode>
		<PaymentType>NEFT</PaymentType>
		<CustomerName>Anil Sharma</CustomerName>
		<FromAccountNo>1234567890</FromAccountNo>
		<ToAccountNo>0987654321</ToAccountNo>
		<BranchName>MG Road</BranchName>
		<Comments>Monthly rent</Comments>
		<Amount>5000.50</Amount>
		<DateTime>2026-01-15T10:30:00Z</DateTime>
	</PaymentInstruction>`
}

func TestParse_ValidInstruction(t *testing.T) {
	p := newTestParser()

	instr, err := p.Parse(validPayload(), "req-1", "web-portal")
	assert.NoError(t, err)
	assert.Equal(t, "Ravi Kumar", instr.PayeeName)
	assert.Equal(t, "HDFC0001234", instr.IFSCCode)
	assert.Equal(t, "NEFT", instr.PaymentType)
	assert.Equal(t, "Anil Sharma", instr.CustomerName)
	assert.Equal(t, "1234567890", instr.FromAccountNo)
	assert.Equal(t, "0987654321", instr.ToAccountNo)
	assert.Equal(t, "MG Road", instr.BranchName)
	assert.Equal(t, "Monthly rent", instr.Comments)
	assert.True(t, instr.Amount.Equal(decimal.RequireFromString("5000.50")))
	assert.Equal(t, time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC), instr.InitiatedAt.UTC())
	assert.Equal(t, "req-1", instr.RequestID)
	assert.Equal(t, "web-portal", instr.APIClient)
}

func TestParse_EmptyPayload(t *testing.T) {
	p := newTestParser()

	_, err := p.Parse("   ", "req-1", "web-portal")
	assert.ErrorIs(t, err, pkgerrors.ErrValidation)
}

func TestParse_OversizedPayload(t *testing.T) {
	p := NewParser(64, 500, validator.New(), logger.NewNop())

	_, err := p.Parse(validPayload(), "req-1", "web-portal")
	assert.ErrorIs(t, err, pkgerrors.ErrValidation)
	assert.Contains(t, err.Error(), "maximum size")
}

func TestParse_InvalidIFSC(t *testing.T) {
	p := newTestParser()
	payload := strings.Replace(validPayload(), "HDFC0001234", "BADCODE", 1)

	_, err := p.Parse(payload, "req-1", "web-portal")
	assert.ErrorIs(t, err, pkgerrors.ErrValidation)
	assert.Contains(t, err.Error(), "IFSCCode")
}

func TestParse_InvalidPaymentType(t *testing.T) {
	p := newTestParser()
	payload := strings.Replace(validPayload(), "NEFT", "WIRE", 1)

	_, err := p.Parse(payload, "req-1", "web-portal")
	assert.ErrorIs(t, err, pkgerrors.ErrValidation)
	assert.Contains(t, err.Error(), "PaymentType")
}

func TestParse_NonNumericAmount(t *testing.T) {
	p := newTestParser()
	payload := strings.Replace(validPayload(), "5000.50", "not-a-number", 1)

	_, err := p.Parse(payload, "req-1", "web-portal")
	assert.ErrorIs(t, err, pkgerrors.ErrValidation)
	assert.Contains(t, err.Error(), "invalid amount")
}

func TestParse_MissingAmount(t *testing.T) {
	p := newTestParser()
	payload := strings.Replace(validPayload(), "<Amount>5000.50</Amount>", "", 1)

	_, err := p.Parse(payload, "req-1", "web-portal")
	assert.ErrorIs(t, err, pkgerrors.ErrValidation)
	assert.Contains(t, err.Error(), "Amount")
}

func TestParse_FirstViolationReported(t *testing.T) {
	p := newTestParser()
	// Both the payee name and the routing code are bad; field order decides.
	payload := strings.Replace(validPayload(), "Ravi Kumar", "", 1)
	payload = strings.Replace(payload, "HDFC0001234", "BADCODE", 1)

	_, err := p.Parse(payload, "req-1", "web-portal")
	assert.ErrorIs(t, err, pkgerrors.ErrValidation)
	assert.Contains(t, err.Error(), "PayeeName")
	assert.NotContains(t, err.Error(), "IFSCCode")
}

func TestParse_BadDateTimeFallsBackToNow(t *testing.T) {
	p := newTestParser()
	payload := strings.Replace(validPayload(), "2026-01-15T10:30:00Z", "15/01/2026", 1)

	before := time.Now()
	instr, err := p.Parse(payload, "req-1", "web-portal")
	assert.NoError(t, err)
	assert.False(t, instr.InitiatedAt.Before(before))
}

func TestParse_CommentsTooLong(t *testing.T) {
	p := NewParser(1<<20, 10, validator.New(), logger.NewNop())
	payload := strings.Replace(validPayload(), "Monthly rent", strings.Repeat("x", 11), 1)

	_, err := p.Parse(payload, "req-1", "web-portal")
	assert.ErrorIs(t, err, pkgerrors.ErrValidation)
	assert.Contains(t, err.Error(), "comments exceed")
}

func TestExtractValue(t *testing.T) {
	assert.Equal(t, "abc", extractValue("<Tag> abc </Tag>", "Tag"))
	assert.Equal(t, "", extractValue("<Tag>abc", "Tag"))
	assert.Equal(t, "", extractValue("no tags here", "Tag"))
}
