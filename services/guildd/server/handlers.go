package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"

	"guildhall/core/types"
	"guildhall/crypto"
	"guildhall/native/adapters"
	nativecommon "guildhall/native/common"
	"guildhall/native/dao"
	"guildhall/native/proposals"
	"guildhall/native/treasury"
	"guildhall/services/guildd/archive"
	"guildhall/services/guildd/middleware"
)

type proposalView struct {
	ID          uint64 `json:"id"`
	Status      string `json:"status"`
	Proposer    string `json:"proposer"`
	Applicant   string `json:"applicant"`
	Asset       string `json:"asset"`
	Amount      string `json:"amount"`
	Units       string `json:"units"`
	Sponsor     string `json:"sponsor,omitempty"`
	CreatedAt   int64  `json:"createdAt"`
	SponsoredAt int64  `json:"sponsoredAt,omitempty"`
	ProcessedAt int64  `json:"processedAt,omitempty"`
	Deadline    int64  `json:"deadline,omitempty"`
	Outcome     string `json:"outcome,omitempty"`
}

func viewOf(p *proposals.Proposal) proposalView {
	v := proposalView{
		ID:        p.ID,
		Status:    p.Status.String(),
		Proposer:  p.Proposer.String(),
		Applicant: p.Applicant.String(),
		Asset:     p.Asset.String(),
		Amount:    p.Amount.Dec(),
		Units:     p.Units.Dec(),
		CreatedAt: p.CreatedAt.Unix(),
	}
	if p.Status >= proposals.StatusSponsored {
		v.Sponsor = p.Sponsor.String()
		v.SponsoredAt = p.SponsoredAt.Unix()
		v.Deadline = p.Deadline().Unix()
	}
	if p.Status == proposals.StatusProcessed {
		v.ProcessedAt = p.ProcessedAt.Unix()
		v.Outcome = p.Outcome.String()
	}
	return v
}

func (s *Server) handleLoot(w http.ResponseWriter, r *http.Request) {
	account, err := pathAddress(r, "account")
	if err != nil {
		badRequest(w, "invalid account")
		return
	}
	loot, err := s.node.Org.LootBalanceOf(account)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	shares, err := s.node.Org.SharesOf(account)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"account": account.String(),
		"loot":    loot.Dec(),
		"shares":  shares.Dec(),
	})
}

// handleMembers lists holders of one unit class, Loot unless ?class=shares.
func (s *Server) handleMembers(w http.ResponseWriter, r *http.Request) {
	class := treasury.UnitLoot
	switch strings.ToLower(strings.TrimSpace(r.URL.Query().Get("class"))) {
	case "", "loot":
	case "shares":
		class = treasury.UnitShares
	default:
		badRequest(w, "unknown unit class")
		return
	}
	members, err := s.node.Org.Members(class)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	out := make([]string, 0, len(members))
	for _, m := range members {
		out = append(out, m.String())
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"class": class.String(), "members": out})
}

func parseAsset(raw string) (treasury.AssetKind, error) {
	if strings.TrimSpace(raw) == "" {
		return treasury.Native(), nil
	}
	return treasury.ParseAssetKind(raw)
}

func accountAlias(raw string) (crypto.Address, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "guild":
		return crypto.GuildAddress, nil
	case "escrow":
		return crypto.EscrowAddress, nil
	}
	return crypto.DecodeAddress(raw)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	account, err := accountAlias(chi.URLParam(r, "account"))
	if err != nil {
		badRequest(w, "invalid account")
		return
	}
	asset, err := parseAsset(r.URL.Query().Get("asset"))
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	bal, err := s.node.Org.BalanceOf(account, asset)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"account": account.String(),
		"asset":   asset.String(),
		"balance": bal.Dec(),
	})
}

func (s *Server) handleTotals(w http.ResponseWriter, r *http.Request) {
	asset, err := parseAsset(chi.URLParam(r, "asset"))
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	totals, err := s.node.Org.Totals(asset)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	conserved := s.node.Org.CheckConservation() == nil
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"asset":     asset.String(),
		"received":  totals.Received.Dec(),
		"disbursed": totals.Disbursed.Dec(),
		"supply":    totals.Supply.Dec(),
		"conserved": conserved,
	})
}

func (s *Server) handleListProposals(w http.ResponseWriter, r *http.Request) {
	list, err := s.node.Org.Proposals()
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	out := make([]proposalView, 0, len(list))
	for _, p := range list {
		out = append(out, viewOf(p))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"proposals": out})
}

func (s *Server) handleGetProposal(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		badRequest(w, "invalid proposal id")
		return
	}
	p, err := s.node.Org.Proposal(id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(p))
}

type eventView struct {
	Sequence   uint64            `json:"sequence"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// handleEvents serves the archive when one is configured and the in-memory
// history of the organization otherwise.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := archive.Filter{Type: q.Get("type"), ProposalID: q.Get("proposalId")}
	if raw := q.Get("after"); raw != "" {
		after, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			badRequest(w, "invalid after")
			return
		}
		filter.After = after
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			badRequest(w, "invalid limit")
			return
		}
		filter.Limit = limit
	}

	out := []eventView{}
	if a := s.archive(); a != nil {
		recs, err := a.List(r.Context(), filter)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		for _, rec := range recs {
			attrs, err := rec.Attrs()
			if err != nil {
				s.writeDomainError(w, err)
				return
			}
			out = append(out, eventView{Sequence: rec.Sequence, Type: rec.Type, Attributes: attrs})
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"events": out})
		return
	}
	for i, evt := range s.node.Org.Events() {
		seq := uint64(i + 1)
		if seq <= filter.After || !matches(evt, filter) {
			continue
		}
		out = append(out, eventView{Sequence: seq, Type: evt.Type, Attributes: evt.Attributes})
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": out})
}

func matches(evt *types.Event, f archive.Filter) bool {
	if f.Type != "" && evt.Type != f.Type {
		return false
	}
	if f.ProposalID != "" && evt.Attr("proposalId") != f.ProposalID {
		return false
	}
	return true
}

func (s *Server) handleTokenBalance(w http.ResponseWriter, r *http.Request) {
	tokenAddr, err := pathAddress(r, "token")
	if err != nil {
		badRequest(w, "invalid token")
		return
	}
	account, err := pathAddress(r, "account")
	if err != nil {
		badRequest(w, "invalid account")
		return
	}
	var bal *uint256.Int
	err = s.node.Org.View(func(tx *dao.Tx) error {
		var err error
		bal, err = tx.Token(tokenAddr).BalanceOf(account)
		return err
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": tokenAddr.String(), "account": account.String(), "balance": bal.Dec()})
}

type onboardRequest struct {
	Applicant string `json:"applicant"`
	Amount    string `json:"amount"`
	Value     string `json:"value"`
}

func (s *Server) handleOnboard(w http.ResponseWriter, r *http.Request) {
	var req onboardRequest
	if err := decodeBody(w, r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	call := callerOf(r.Context())
	applicant := call.Caller
	if strings.TrimSpace(req.Applicant) != "" {
		addr, err := crypto.DecodeAddress(req.Applicant)
		if err != nil {
			badRequest(w, "invalid applicant")
			return
		}
		applicant = addr
	}
	declared, err := parseAmount(req.Amount)
	if err != nil {
		badRequest(w, "invalid amount")
		return
	}
	if call.Value, err = parseAmount(req.Value); err != nil {
		badRequest(w, "invalid value")
		return
	}
	id, err := s.node.Onboarding.OnboardApplicant(r.Context(), call, applicant, declared)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]uint64{"proposalId": id})
}

type sponsorRequest struct {
	Data string `json:"data"`
}

func (s *Server) handleSponsor(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		badRequest(w, "invalid proposal id")
		return
	}
	var req sponsorRequest
	if err := decodeBody(w, r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if err := s.node.Onboarding.SponsorProposal(r.Context(), callerOf(r.Context()), id, []byte(req.Data)); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"proposalId": id})
}

type voteRequest struct {
	Choice string `json:"choice"`
}

func (s *Server) handleVote(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		badRequest(w, "invalid proposal id")
		return
	}
	var req voteRequest
	if err := decodeBody(w, r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	choice, err := adapters.ParseChoice(req.Choice)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	if err := s.node.Voting.SubmitVote(r.Context(), callerOf(r.Context()), id, choice); err != nil {
		s.writeDomainError(w, err)
		return
	}
	yes, no, err := s.node.Voting.Tally(id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"proposalId": id, "yes": yes, "no": no})
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		badRequest(w, "invalid proposal id")
		return
	}
	if err := s.node.Onboarding.ProcessProposal(r.Context(), callerOf(r.Context()), id); err != nil {
		s.writeDomainError(w, err)
		return
	}
	p, err := s.node.Org.Proposal(id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(p))
}

type approveRequest struct {
	Spender string `json:"spender"`
	Amount  string `json:"amount"`
}

// handleApprove sets the caller's allowance on a token. The spender may be
// the literal "organization" or "adapter" instead of an address.
func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	tokenAddr, err := pathAddress(r, "token")
	if err != nil {
		badRequest(w, "invalid token")
		return
	}
	var req approveRequest
	if err := decodeBody(w, r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	var spender crypto.Address
	switch strings.ToLower(strings.TrimSpace(req.Spender)) {
	case "organization":
		spender = s.node.Org.Address()
	case "adapter":
		spender = s.node.Onboarding.Address()
	default:
		if spender, err = crypto.DecodeAddress(req.Spender); err != nil {
			badRequest(w, "invalid spender")
			return
		}
	}
	amount, err := parseAmount(req.Amount)
	if err != nil || amount == nil {
		badRequest(w, "invalid amount")
		return
	}
	owner, _ := middleware.CallerFrom(r.Context())
	err = s.node.Org.Execute(func(tx *dao.Tx) error {
		return tx.Token(tokenAddr).Approve(owner, spender, amount)
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"owner": owner.String(), "spender": spender.String(), "amount": amount.Dec()})
}

type pauseRequest struct {
	Paused bool `json:"paused"`
}

// handlePause lets the founder pause or resume a module.
func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	caller, _ := middleware.CallerFrom(r.Context())
	if caller != s.node.Org.Founder() {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "only the founder may change pauses")
		return
	}
	module := chi.URLParam(r, "module")
	switch module {
	case nativecommon.ModuleOnboarding, nativecommon.ModuleVoting, nativecommon.ModuleProcessing:
	default:
		badRequest(w, "unknown module")
		return
	}
	var req pauseRequest
	if err := decodeBody(w, r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	s.node.Pauses.Set(module, req.Paused)
	s.logger.Info("module pause changed", "module", module, "paused", req.Paused, "caller", caller.String())
	writeJSON(w, http.StatusOK, map[string]interface{}{"module": module, "paused": req.Paused})
}
