package wordpress

import "slices"

// ResolveInput returns the entry points for a browser build, or for a server-side rendering build if ssr is true.
func ResolveInput(cfg ResolvedConfig, ssr bool) []string {
	if ssr {
		return slices.Clone(cfg.SSRInput)
	}
	return slices.Clone(cfg.Input)
}

// ResolveOutDir returns the output directory for a browser build, or for a server-side rendering build if ssr is
// true.
func ResolveOutDir(cfg ResolvedConfig, ssr bool) string {
	if ssr {
		return cfg.SSROutputDirectory
	}
	return cfg.PublicDirectory + `/` + cfg.BuildDirectory
}
