// Package model defines the Retrieval Unit, the one data structure shared
// by the catalog, resolver, storage and download packages.
//
// # Unit
//
// A Unit is built from exactly one kind of reference:
//
//	model.NewCatalogUnit("Numb", []string{"Linkin Park"}, 187, id, link)
//	model.NewMediaLinkUnit("https://www.youtube.com/watch?v=kXYiU_JCYtU")
//	model.NewQueryUnit("numb linkin park")
//
// The download package walks it through the Status state machine and
// appends to its log trail; failed units carry that trail back to the
// caller.
package model
