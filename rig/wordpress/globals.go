package wordpress

import (
	"fmt"
	"regexp"
	"strings"

	esbuild "github.com/evanw/esbuild/pkg/api"
)

// globalsNamespace holds the stub modules that re-export window globals.
const globalsNamespace = `wordpress-global`

// KnownGlobals maps modules that WordPress already loads on the page to the global variables that hold them.
// Packages under @wordpress/ are resolved by GlobalName and do not need to be listed.
var KnownGlobals = map[string]string{
	`jquery`:            `jQuery`,
	`lodash`:            `lodash`,
	`lodash-es`:         `lodash`,
	`moment`:            `moment`,
	`react`:             `React`,
	`react-dom`:         `ReactDOM`,
	`react/jsx-runtime`: `ReactJSXRuntime`,
	`backbone`:          `Backbone`,
	`tinymce`:           `tinymce`,
}

// bundledWordPressPackages are published under @wordpress/ but are not provided as globals by WordPress.
var bundledWordPressPackages = map[string]bool{
	`@wordpress/icons`:        true,
	`@wordpress/interface`:    true,
	`@wordpress/style-engine`: true,
}

// GlobalName returns the global variable expression for a module, and false if the module should be bundled.
// "@wordpress/block-editor" becomes "wp.blockEditor".
func GlobalName(module string) (string, bool) {
	if name, ok := KnownGlobals[module]; ok {
		return name, true
	}
	pkg, ok := strings.CutPrefix(module, `@wordpress/`)
	if !ok || pkg == `` || strings.Contains(pkg, `/`) || bundledWordPressPackages[module] {
		return ``, false
	}
	return `wp.` + camelCase(pkg), true
}

func camelCase(s string) string {
	var b strings.Builder
	upper := false
	for _, r := range s {
		if r == '-' {
			upper = true
			continue
		}
		if upper && r >= 'a' && r <= 'z' {
			r -= 'a' - 'A'
		}
		upper = false
		b.WriteRune(r)
	}
	return b.String()
}

var globalsFilter = func() string {
	names := make([]string, 0, len(KnownGlobals)+1)
	for name := range KnownGlobals {
		names = append(names, regexp.QuoteMeta(name))
	}
	names = append(names, `@wordpress/[^/]+`)
	return `^(` + strings.Join(names, `|`) + `)$`
}()

// GlobalsPlugin returns an esbuild plugin that replaces imports of modules WordPress provides with references to the
// globals that hold them, so those modules are never bundled.
func GlobalsPlugin() esbuild.Plugin {
	return esbuild.Plugin{
		Name: `wordpress-globals`,
		Setup: func(build esbuild.PluginBuild) {
			build.OnResolve(esbuild.OnResolveOptions{Filter: globalsFilter},
				func(args esbuild.OnResolveArgs) (esbuild.OnResolveResult, error) {
					if _, ok := GlobalName(args.Path); !ok {
						return esbuild.OnResolveResult{}, nil // let esbuild resolve it normally
					}
					return esbuild.OnResolveResult{Path: args.Path, Namespace: globalsNamespace}, nil
				})
			build.OnLoad(esbuild.OnLoadOptions{Filter: `.*`, Namespace: globalsNamespace},
				func(args esbuild.OnLoadArgs) (esbuild.OnLoadResult, error) {
					name, _ := GlobalName(args.Path)
					contents := globalStub(name)
					return esbuild.OnLoadResult{Contents: &contents, Loader: esbuild.LoaderJS}, nil
				})
		},
	}
}

func globalStub(name string) string {
	return fmt.Sprintf(`module.exports = window.%s;`, name)
}
