package compiler

import "github.com/ilex-lang/ilex/internal/chunk"

const maxLocals = 1 << 16

func (p *Parser) beginScope() { p.current.scopeDepth++ }

func (p *Parser) endScope() {
	fs := p.current
	fs.scopeDepth--
	for len(fs.locals) > 0 && fs.locals[len(fs.locals)-1].depth > fs.scopeDepth {
		if fs.locals[len(fs.locals)-1].isCaptured {
			p.emitOp(chunk.OpCloseUpvalue)
		} else {
			p.emitOp(chunk.OpPop)
		}
		fs.locals = fs.locals[:len(fs.locals)-1]
	}
}

func (p *Parser) declareVariable(name string, readonly bool) {
	if p.current.scopeDepth == 0 {
		return
	}
	for i := len(p.current.locals) - 1; i >= 0; i-- {
		l := p.current.locals[i]
		if l.depth != -1 && l.depth < p.current.scopeDepth {
			break
		}
		if l.name == name {
			p.error("variable with this name already declared in this scope")
		}
	}
	p.addLocal(name, readonly)
}

func (p *Parser) addLocal(name string, readonly bool) {
	if len(p.current.locals) >= maxLocals {
		p.error("too many local variables in function")
		return
	}
	p.current.locals = append(p.current.locals, localVar{name: name, depth: -1, readonly: readonly})
}

func (p *Parser) markInitialized() {
	if p.current.scopeDepth == 0 {
		return
	}
	p.current.locals[len(p.current.locals)-1].depth = p.current.scopeDepth
}

func (p *Parser) resolveLocal(fs *funcState, name string) int {
	for i := len(fs.locals) - 1; i >= 0; i-- {
		if fs.locals[i].name == name {
			if fs.locals[i].depth == -1 {
				p.error("can't read local variable in its own initializer")
			}
			return i
		}
	}
	return -1
}

func (p *Parser) resolveUpvalue(fs *funcState, name string) int {
	if fs.enclosing == nil {
		return -1
	}
	if local := p.resolveLocal(fs.enclosing, name); local != -1 {
		fs.enclosing.locals[local].isCaptured = true
		return p.addUpvalue(fs, local, true)
	}
	if up := p.resolveUpvalue(fs.enclosing, name); up != -1 {
		return p.addUpvalue(fs, up, false)
	}
	return -1
}

func (p *Parser) addUpvalue(fs *funcState, index int, isLocal bool) int {
	for i, u := range fs.upvalues {
		if u.index == index && u.isLocal == isLocal {
			return i
		}
	}
	fs.upvalues = append(fs.upvalues, upvalueDesc{index: index, isLocal: isLocal})
	return len(fs.upvalues) - 1
}

// isScriptFunc reports whether the function currently being compiled is the
// outermost script body (no enclosing compiler frame): only there does a
// depth-0 declaration become a script export rather than a stack local.
func (p *Parser) isScriptFunc() bool {
	return p.current.enclosing == nil
}
