// Copyright 2025 Certen Protocol
//
// Coordinator runs the bilateral propose/accept/reject settlement
// protocol on top of the network layer's settlement topic. Modeled after
// the same cyclic-ownership pattern internal/netp2p's Host uses with its
// consumer: the coordinator owns an outbound command channel to the
// network and a channel of finalized settlement transactions handed to
// the consensus mempool, and is in turn driven by whatever reads events
// off the network's event channel and calls
// HandleProposal/HandleAcceptance/HandleRejection.

package settlement

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/certen/sp-cdr-settlement/internal/ledger"
	"github.com/certen/sp-cdr-settlement/internal/netp2p"
	"github.com/certen/sp-cdr-settlement/internal/primitives"
	"github.com/certen/sp-cdr-settlement/internal/zkp"
)

// Config holds the policy knobs for the settlement layer.
type Config struct {
	Own primitives.NetworkId
	SettlementThresholdCents int64
	AutoAcceptThresholdCents int64
	EnableTriangularNetting bool
	ProposalExpiryBlocks uint64
	Logger *slog.Logger
}

// Coordinator tracks in-flight bilateral proposals and triangular netting
// sessions for one node.
type Coordinator struct {
	cfg Config
	harness *zkp.Harness
	log *slog.Logger

	netCmd chan<- netp2p.Command // outbound to the network host
	txOut chan<- ledger.Transaction // finalized Settlement transactions, for the mempool

	mu sync.Mutex
	proposals map[primitives.Hash]*Proposal
	seenNonces map[string]map[uint64]struct{} // keyed by "creditor|debtor"
	nettings map[primitives.Hash]*nettingSession
}

// NewCoordinator constructs a Coordinator. netCmd and txOut are owned by
// the caller; the coordinator only ever sends on them.
func NewCoordinator(cfg Config, harness *zkp.Harness, netCmd chan<- netp2p.Command, txOut chan<- ledger.Transaction) *Coordinator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Coordinator{
		cfg: cfg,
		harness: harness,
		log: cfg.Logger.With("component", "settlement"),
		netCmd: netCmd,
		txOut: txOut,
		proposals: make(map[primitives.Hash]*Proposal),
		seenNonces: make(map[string]map[uint64]struct{}),
		nettings: make(map[primitives.Hash]*nettingSession),
	}
}

func nonceKey(creditor, debtor primitives.NetworkId) string {
	return creditor.String() + "|" + debtor.String()
}

// nonceSeen reports whether (creditor,debtor,nonce) has already been used,
// recording it if not — the replay-prevention check HandleProposal uses to
// reject a re-delivered SettlementProposal by nonce.
func (c *Coordinator) nonceSeen(creditor, debtor primitives.NetworkId, nonce uint64) bool {
	key := nonceKey(creditor, debtor)
	seen, ok := c.seenNonces[key]
	if !ok {
		seen = make(map[uint64]struct{})
		c.seenNonces[key] = seen
	}
	if _, used := seen[nonce]; used {
		return true
	}
	seen[nonce] = struct{}{}
	return false
}

// ProposeSettlement opens a new bilateral proposal: it proves the
// settlement_calculation circuit over the two operators' sealed batch
// roots, gossips the proposal, and records it as ProposalSent.
func (c *Coordinator) ProposeSettlement(debtor primitives.NetworkId, amount primitives.Money, period string, batchRootA, batchRootB primitives.Hash, batchA, batchB []zkp.RecordCharge, nonce uint64) (*Proposal, error) {
	periodHash := primitives.SumHash([]byte(period))
	pub := zkp.SettlementPublicInputs{
		Creditor: c.cfg.Own,
		Debtor: debtor,
		AmountCents: amount.Cents,
		Period: periodHash,
		BatchRootA: batchRootA,
		BatchRootB: batchRootB,
	}
	assignment, err := zkp.BuildSettlementAssignment(pub, batchA, batchB)
	if err != nil {
		return nil, fmt.Errorf("settlement: build assignment: %w", err)
	}
	proof, err := c.harness.ProveWithRetry(zkp.CircuitSettlementCalculation, assignment, 3)
	if err != nil {
		return nil, fmt.Errorf("settlement: prove settlement_calculation: %w", err)
	}

	h := proposalHash(c.cfg.Own, debtor, amount.Cents, amount.Currency, periodHash, nonce)
	p := &Proposal{
		Hash: h,
		Creditor: c.cfg.Own,
		Debtor: debtor,
		Amount: amount,
		Period: period,
		Nonce: nonce,
		Proof: proof,
		BatchRootA: batchRootA,
		BatchRootB: batchRootB,
		Status: StatusProposalSent,
	}

	c.mu.Lock()
	c.proposals[h] = p
	c.mu.Unlock()

	msg := netp2p.SettlementProposal{
		Creditor: c.cfg.Own,
		Debtor: debtor,
		AmountCents: amount.Cents,
		Currency: amount.Currency,
		PeriodHash: primitives.SumHash([]byte(period)),
		Nonce: nonce,
		Proof: proof,
	}
	env, err := netp2p.EncodeSettlementProposal(msg)
	if err != nil {
		return nil, fmt.Errorf("settlement: encode proposal: %w", err)
	}
	c.netCmd <- netp2p.Command{Kind: netp2p.CommandBroadcast, Topic: netp2p.TopicSettlement, Msg: env}

	c.log.Info("settlement proposal sent", "proposal_hash", h.Hex(), "debtor", debtor.String(), "amount_cents", amount.Cents)
	return p, nil
}

// ProposalDecision is the outcome of evaluating an incoming proposal.
type ProposalDecision struct {
	Accept bool
	Reason string // set when Accept is false
}

// HandleProposal evaluates an incoming SettlementProposal against the
// four acceptance conditions, records the receiver-side state, broadcasts
// the decision on the settlement topic as a SettlementAcceptance or
// SettlementRejection, and returns it. A replayed nonce is rejected
// without recording or broadcasting anything. A proof that cannot be
// deserialized is rejected as proof_verification_failed like any other
// failing proof, and the deserialization error is returned as well.
func (c *Coordinator) HandleProposal(msg netp2p.SettlementProposal, localBatchRootA, localBatchRootB primitives.Hash) (*Proposal, ProposalDecision, error) {
	c.mu.Lock()
	replay := c.nonceSeen(msg.Creditor, msg.Debtor, msg.Nonce)
	c.mu.Unlock()
	if replay {
		return nil, ProposalDecision{Accept: false, Reason: "replayed_nonce"}, nil
	}

	h := proposalHash(msg.Creditor, msg.Debtor, msg.AmountCents, msg.Currency, msg.PeriodHash, msg.Nonce)
	p := &Proposal{
		Hash: h,
		Creditor: msg.Creditor,
		Debtor: msg.Debtor,
		Amount: primitives.Money{Cents: msg.AmountCents, Currency: msg.Currency},
		Nonce: msg.Nonce,
		Proof: msg.Proof,
		BatchRootA: localBatchRootA,
		BatchRootB: localBatchRootB,
		Status: StatusProposalReceived,
	}

	pub := zkp.SettlementPublicInputs{
		Creditor: msg.Creditor,
		Debtor: msg.Debtor,
		AmountCents: msg.AmountCents,
		Period: msg.PeriodHash,
		BatchRootA: localBatchRootA,
		BatchRootB: localBatchRootB,
	}
	publicAssignment := zkp.BuildSettlementPublicAssignment(pub)
	ok, verifyErr := c.harness.Verify(zkp.CircuitSettlementCalculation, publicAssignment, msg.Proof)

	var decision ProposalDecision
	switch {
	case verifyErr != nil || !ok:
		decision = ProposalDecision{Accept: false, Reason: "proof_verification_failed"}
	case msg.AmountCents < c.cfg.SettlementThresholdCents:
		decision = ProposalDecision{Accept: false, Reason: "below_threshold"}
	case msg.AmountCents <= c.cfg.AutoAcceptThresholdCents:
		decision = ProposalDecision{Accept: true}
	default:
		decision = ProposalDecision{Accept: false, Reason: "requires_manual_review"}
	}

	if decision.Accept {
		p.Status = StatusAcceptSent
	} else {
		p.Status = StatusRejectSent
		p.RejectReason = decision.Reason
	}

	c.mu.Lock()
	c.proposals[h] = p
	c.mu.Unlock()

	if decision.Accept {
		acc := netp2p.SettlementAcceptance{ProposalHash: h}
		env, err := netp2p.EncodeSettlementAcceptance(acc)
		if err != nil {
			return p, decision, fmt.Errorf("settlement: encode acceptance: %w", err)
		}
		c.netCmd <- netp2p.Command{Kind: netp2p.CommandBroadcast, Topic: netp2p.TopicSettlement, Msg: env}
	} else {
		rej := netp2p.SettlementRejection{ProposalHash: h, Reason: decision.Reason}
		env, err := netp2p.EncodeSettlementRejection(rej)
		if err != nil {
			return p, decision, fmt.Errorf("settlement: encode rejection: %w", err)
		}
		c.netCmd <- netp2p.Command{Kind: netp2p.CommandBroadcast, Topic: netp2p.TopicSettlement, Msg: env}
	}

	c.log.Info("settlement proposal evaluated", "proposal_hash", h.Hex(), "accept", decision.Accept, "reason", decision.Reason)
	if verifyErr != nil {
		return p, decision, fmt.Errorf("settlement: verify proposal %s: %w", h.Hex(), verifyErr)
	}
	return p, decision, nil
}

// HandleAcceptance finalizes a proposal this node made, submitting a
// Settlement transaction to the mempool channel.
func (c *Coordinator) HandleAcceptance(msg netp2p.SettlementAcceptance) error {
	c.mu.Lock()
	p, ok := c.proposals[msg.ProposalHash]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("settlement: acceptance for unknown proposal %s", msg.ProposalHash.Hex())
	}

	c.mu.Lock()
	p.Status = StatusAccepted
	c.mu.Unlock()

	amount, err := primitives.NewMoney(p.Amount.Cents, p.Amount.Currency)
	if err != nil {
		return fmt.Errorf("settlement: finalize proposal %s: %w", p.Hash.Hex(), err)
	}
	tx := ledger.Transaction{
		Data: ledger.SettlementPayload{
			Creditor: p.Creditor,
			Debtor: p.Debtor,
			Amount: amount,
			Period: p.Period,
		},
	}
	c.txOut <- tx
	c.log.Info("settlement finalized", "proposal_hash", p.Hash.Hex())
	return nil
}

// HandleRejection records a proposal this node made as rejected.
func (c *Coordinator) HandleRejection(msg netp2p.SettlementRejection) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.proposals[msg.ProposalHash]
	if !ok {
		return fmt.Errorf("settlement: rejection for unknown proposal %s", msg.ProposalHash.Hex())
	}
	p.Status = StatusRejected
	p.RejectReason = msg.Reason
	c.log.Info("settlement rejected", "proposal_hash", p.Hash.Hex(), "reason", msg.Reason)
	return nil
}

// ExpireProposals marks every non-terminal proposal whose ExpiresAt height
// has been reached as Expired. A proposal with ExpiresAt zero never
// expires, and neither ProposeSettlement nor HandleProposal sets ExpiresAt
// (Config.ProposalExpiryBlocks is not read), so the proposals they create
// do not expire.
func (c *Coordinator) ExpireProposals(currentHeight uint64) []primitives.Hash {
	c.mu.Lock()
	defer c.mu.Unlock()
	var expired []primitives.Hash
	for h, p := range c.proposals {
		if p.IsTerminal() {
			continue
		}
		if p.ExpiresAt != 0 && currentHeight >= p.ExpiresAt {
			p.Status = StatusExpired
			expired = append(expired, h)
		}
	}
	return expired
}

// Get returns the tracked proposal for hash, if any.
func (c *Coordinator) Get(hash primitives.Hash) (*Proposal, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.proposals[hash]
	return p, ok
}
