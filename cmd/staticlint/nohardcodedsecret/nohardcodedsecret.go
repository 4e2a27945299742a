// Package nohardcodedsecret reports tokens signed with a key written in the
// source code.
package nohardcodedsecret

import (
	"go/ast"
	"go/token"
	"strings"

	"golang.org/x/tools/go/analysis"
)

// Analyzer flags calls of SignedString whose key is a string or byte slice
// literal. Signing keys come from configuration.
var Analyzer = &analysis.Analyzer{
	Name: "nohardcodedsecret",
	Doc:  "prohibits signing tokens with a literal key",
	Run:  run,
}

func run(pass *analysis.Pass) (interface{}, error) {
	for _, file := range pass.Files {
		filename := pass.Fset.File(file.Pos()).Name()
		if strings.HasSuffix(filename, "_test.go") {
			continue
		}

		ast.Inspect(file, func(n ast.Node) bool {
			call, ok := n.(*ast.CallExpr)
			if !ok || len(call.Args) != 1 {
				return true
			}

			sel, ok := call.Fun.(*ast.SelectorExpr)
			if !ok || sel.Sel.Name != "SignedString" {
				return true
			}

			if isLiteralKey(call.Args[0]) {
				pass.Reportf(call.Args[0].Pos(), "token signing key must not be a literal")
			}

			return true
		})
	}
	return nil, nil
}

// isLiteralKey matches "key", []byte("key") and []byte{...}.
func isLiteralKey(expr ast.Expr) bool {
	switch e := expr.(type) {
	case *ast.BasicLit:
		return e.Kind == token.STRING
	case *ast.CompositeLit:
		return isByteSlice(e.Type)
	case *ast.CallExpr:
		if len(e.Args) != 1 || !isByteSlice(e.Fun) {
			return false
		}
		lit, ok := e.Args[0].(*ast.BasicLit)
		return ok && lit.Kind == token.STRING
	}
	return false
}

func isByteSlice(expr ast.Expr) bool {
	array, ok := expr.(*ast.ArrayType)
	if !ok || array.Len != nil {
		return false
	}
	ident, ok := array.Elt.(*ast.Ident)
	return ok && (ident.Name == "byte" || ident.Name == "uint8")
}
