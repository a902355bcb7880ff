// Package scoring holds the pure ranking functions: cosine similarity,
// time decay, and their product.
//
// Similarity is derived from cosine distance d ∈ [0, 2] as 1 − d/2, so
// identical directions score 1, orthogonal vectors 0.5 and opposite vectors 0.
// The zero vector marks a forgotten record and always scores 0.
//
// Decay follows 1 / (1 + age/h): it is 1 at age 0 and exactly 0.5 when the
// age equals the half-life h. Documents dated in the future are treated as
// age 0.
package scoring
