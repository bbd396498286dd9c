package events

import (
	"testing"

	"github.com/holiman/uint256"

	"guildhall/crypto"
)

func TestProposalSubmittedAttributes(t *testing.T) {
	evt := ProposalSubmitted{
		Org:       crypto.GuildAddress,
		ID:        7,
		Proposer:  crypto.EscrowAddress,
		Applicant: crypto.EscrowAddress,
		Asset:     "native",
		Amount:    uint256.NewInt(360),
		Units:     uint256.NewInt(3),
	}.Event()
	if evt.Type != TypeProposalSubmitted {
		t.Fatalf("unexpected type %s", evt.Type)
	}
	if evt.Attr("proposalId") != "7" || evt.Attr("amount") != "360" || evt.Attr("units") != "3" {
		t.Fatalf("unexpected attributes: %+v", evt.Attributes)
	}
	if evt.Attr("applicant") != crypto.EscrowAddress.String() {
		t.Fatalf("applicant must use bech32 form")
	}
}

func TestRecorderFiltersByType(t *testing.T) {
	rec := &Recorder{}
	var emitter Emitter = Multi{rec, NoopEmitter{}, nil}
	emitter.Emit(ProposalSubmitted{ID: 0})
	emitter.Emit(VoteCast{ID: 0, Choice: "yes"})
	emitter.Emit(Typed{Evt: ProposalSubmitted{ID: 1}.Event()})

	if got := len(rec.Events()); got != 3 {
		t.Fatalf("expected 3 events, got %d", got)
	}
	submitted := rec.OfType(TypeProposalSubmitted)
	if len(submitted) != 2 {
		t.Fatalf("expected 2 submissions, got %d", len(submitted))
	}
	if submitted[0].Attr("proposalId") != "0" || submitted[1].Attr("proposalId") != "1" {
		t.Fatalf("events out of order: %v %v", submitted[0].Attributes, submitted[1].Attributes)
	}
}

func TestFormatAmountNil(t *testing.T) {
	if formatAmount(nil) != "0" {
		t.Fatalf("nil amount must render as 0")
	}
}
