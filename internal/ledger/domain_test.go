package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func validInput() EntryInput {
	return EntryInput{
		Date:      time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		Reference: "Order #1",
		Type:      EntryTypeSale,
		Lines: []LineInput{
			{AccountCode: "1100", DebitCents: 5000},
			{AccountCode: "4000", CreditCents: 5000},
		},
	}
}

func TestEntryInputValidate(t *testing.T) {
	require.NoError(t, validInput().Validate())
}

func TestEntryInputValidateUnbalanced(t *testing.T) {
	in := validInput()
	in.Lines[1].CreditCents = 4000
	require.ErrorIs(t, in.Validate(), ErrUnbalanced)
}

func TestEntryInputValidateZeroValue(t *testing.T) {
	in := validInput()
	in.Lines = nil
	require.ErrorIs(t, in.Validate(), ErrZeroValue)
}

func TestEntryInputValidateLineExclusivity(t *testing.T) {
	in := validInput()
	in.Lines[0].CreditCents = 5000
	require.ErrorIs(t, in.Validate(), ErrInvalidLine)

	in = validInput()
	in.Lines[0].DebitCents = 0
	in.Lines[1].CreditCents = 0
	require.ErrorIs(t, in.Validate(), ErrInvalidLine)
}

func TestEntryInputValidateNegativeAmount(t *testing.T) {
	in := validInput()
	in.Lines[0].DebitCents = -100
	require.ErrorIs(t, in.Validate(), ErrInvalidLine)
}

func TestEntryInputValidateUnknownType(t *testing.T) {
	in := validInput()
	in.Type = "refund"
	require.ErrorIs(t, in.Validate(), ErrInvalidEntryType)
}

func TestEntryInputValidateMissingAccountCode(t *testing.T) {
	in := validInput()
	in.Lines[0].AccountCode = ""
	require.ErrorIs(t, in.Validate(), ErrAccountNotFound)
}

func TestJournalEntryTotals(t *testing.T) {
	entry := JournalEntry{Lines: []JournalLine{
		{AccountCode: "1100", DebitCents: 3000},
		{AccountCode: "1300", DebitCents: 2000},
		{AccountCode: "4000", CreditCents: 5000},
	}}
	require.Equal(t, int64(5000), entry.Total())
	require.Equal(t, int64(3000), entry.DebitTo("1100"))
	require.Equal(t, int64(5000), entry.CreditTo("4000"))
	require.Equal(t, int64(0), entry.CreditTo("1100"))
}

func TestReverseLines(t *testing.T) {
	reversed := ReverseLines([]JournalLine{
		{AccountCode: "1300", DebitCents: 5000},
		{AccountCode: "1210", CreditCents: 5000},
	})
	require.Equal(t, []LineInput{
		{AccountCode: "1300", CreditCents: 5000},
		{AccountCode: "1210", DebitCents: 5000},
	}, reversed)
}

func TestEntryTypeValid(t *testing.T) {
	for _, entryType := range EntryTypes {
		require.True(t, entryType.Valid())
	}
	require.False(t, EntryType("refund").Valid())
}
