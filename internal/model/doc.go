// Package model defines the legacy consent sources and the unified identity
// row that the reconciliation engine produces.
//
// Optional string attributes use the empty string for "no value", matching
// how the store maps NULL columns. A zero CreatedAt means the source row
// carried no timestamp; comparisons treat such rows as never newer.
package model
