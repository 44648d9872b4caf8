// Copyright 2025 Certen Protocol

package merkle

import (
	"testing"

	"github.com/certen/sp-cdr-settlement/internal/primitives"
)

func leafHash(s string) primitives.Hash {
	return primitives.SumHash([]byte(s))
}

func TestBuildTree_SingleLeaf(t *testing.T) {
	leaf := leafHash("record-1")
	tree, err := BuildTree([]primitives.Hash{leaf})
	if err != nil {
		t.Fatalf("build tree: %v", err)
	}
	if tree.Root() != leaf {
		t.Errorf("single leaf root mismatch: got %x, want %x", tree.Root(), leaf)
	}
	if tree.LeafCount() != 1 {
		t.Errorf("leaf count = %d, want 1", tree.LeafCount())
	}
}

func TestBuildTree_TwoLeaves(t *testing.T) {
	l1, l2 := leafHash("a"), leafHash("b")
	tree, err := BuildTree([]primitives.Hash{l1, l2})
	if err != nil {
		t.Fatalf("build tree: %v", err)
	}
	want := primitives.SumHashConcat(l1[:], l2[:])
	if tree.Root() != want {
		t.Errorf("root mismatch: got %x want %x", tree.Root(), want)
	}
}

func TestGenerateAndVerifyProof(t *testing.T) {
	leaves := make([]primitives.Hash, 5)
	for i := range leaves {
		leaves[i] = leafHash(string(rune('a' + i)))
	}

	tree, err := BuildTree(leaves)
	if err != nil {
		t.Fatalf("build tree: %v", err)
	}

	for i, leaf := range leaves {
		proof, err := tree.GenerateProof(i)
		if err != nil {
			t.Fatalf("generate proof %d: %v", i, err)
		}
		if !VerifyProof(leaf, proof, tree.Root()) {
			t.Errorf("proof for leaf %d did not verify", i)
		}
	}
}

func TestVerifyProof_RejectsWrongRoot(t *testing.T) {
	leaves := []primitives.Hash{leafHash("x"), leafHash("y"), leafHash("z")}
	tree, err := BuildTree(leaves)
	if err != nil {
		t.Fatalf("build tree: %v", err)
	}

	proof, err := tree.GenerateProof(1)
	if err != nil {
		t.Fatalf("generate proof: %v", err)
	}

	if VerifyProof(leaves[1], proof, leafHash("not-the-root")) {
		t.Error("expected verification to fail against a mismatched root")
	}
}

func TestBuildTree_EmptyRejected(t *testing.T) {
	if _, err := BuildTree(nil); err != ErrEmptyTree {
		t.Errorf("expected ErrEmptyTree, got %v", err)
	}
}

func TestGenerateProofByHash_NotFound(t *testing.T) {
	tree, err := BuildTree([]primitives.Hash{leafHash("only")})
	if err != nil {
		t.Fatalf("build tree: %v", err)
	}
	if _, err := tree.GenerateProofByHash(leafHash("missing")); err != ErrLeafNotFound {
		t.Errorf("expected ErrLeafNotFound, got %v", err)
	}
}
