package ir

import "testing"

func TestParseTextIRSimpleReturn(t *testing.T) {
	prog, err := ParseTextIR(`(program main (fn main () (return (lit 42))))`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	entry, ok := prog.Lookup(prog.Entry)
	if !ok {
		t.Fatalf("entry function not found")
	}
	if entry.Body.Kind != EReturn {
		t.Fatalf("expected EReturn, got %v", entry.Body.Kind)
	}
	if entry.Body.Value.Lit.Int != 42 {
		t.Fatalf("expected literal 42, got %d", entry.Body.Value.Lit.Int)
	}
}

func TestParseTextIRLoopAndPrim(t *testing.T) {
	src := `(program main
	  (fn main ()
	    (let x (lit 0)
	      (seq
	        (loop (if (prim = (var x) (lit 3))
	                  (break)
	                  (let x (prim + (var x) (lit 1)) (continue))))
	        (return (var x))))))`
	prog, err := ParseTextIR(src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(prog.Order) != 1 {
		t.Fatalf("expected 1 function, got %d", len(prog.Order))
	}
}

func TestParseTextIRTwoFunctions(t *testing.T) {
	src := `(program main
	  (fn fact (n)
	    (return (if (prim = (var n) (lit 0))
	                (lit 1)
	                (prim * (var n) (apply (funref fact) (prim - (var n) (lit 1)))))))
	  (fn main ()
	    (return (apply (funref fact) (lit 5)))))`
	prog, err := ParseTextIR(src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(prog.Funcs) != 2 {
		t.Fatalf("expected 2 functions, got %d", len(prog.Funcs))
	}
	fact, ok := prog.Lookup(prog.Order[0])
	if !ok || len(fact.Params) != 1 {
		t.Fatalf("expected fact(n) with 1 param")
	}
}

func TestParseTextIRRejectsUnknownOp(t *testing.T) {
	_, err := ParseTextIR(`(program main (fn main () (return (prim huh (lit 1)))))`)
	if err == nil {
		t.Fatalf("expected an error for an unknown primitive op")
	}
}

func TestParseTextIRRejectsUnbalancedParens(t *testing.T) {
	_, err := ParseTextIR(`(program main (fn main () (return (lit 1))`)
	if err == nil {
		t.Fatalf("expected an error for unbalanced parens")
	}
}
