// Package catalog turns Spotify track, album and playlist links into
// model.Unit values carrying name, artists, album and a duration hint.
//
//	sp := catalog.NewSpotify(clientID, clientSecret)
//	units, err := sp.Playlist(ctx, "https://open.spotify.com/playlist/37i9dQZF1DXcBWIGoYBM5M")
//
// The dto subpackage mirrors the Web API JSON and owns the conversion to
// units.
package catalog
