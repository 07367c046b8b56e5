package resolver

// TrustLevel totally orders competing copies of an RRset so the RRset
// cache (§4.1) can decide whether an incoming copy supersedes a cached
// one. Order is low to high exactly as spec.md §3 lists it.
type TrustLevel int

const (
	TrustAdditionalNoAA TrustLevel = iota
	TrustAuthorityNoAA
	TrustAdditionalAA
	TrustAnswerNonAuthAA // answer-section rrset with AA set, but owner != question name (demoted CNAME)
	TrustAnswerNoAA
	TrustPrimaryGlue    // A/AAAA resolved for a nameserver via a dependent sub-event (§4.8 TargetResponse)
	TrustAuthorityAA
	TrustAnswerAA
	TrustPrimaryNonGlue // NS/address data obtained by priming the root, or configured root hints
)

// Section identifies which part of a dns.Msg an rrset was taken from, the
// input to trust derivation along with the AA flag and name match.
type Section int

const (
	SectionAnswer Section = iota
	SectionAuthority
	SectionAdditional
)

// deriveTrust computes the trust level of an rrset taken from a message
// section, per spec.md §3: "Derived from: the section it appeared in,
// whether the reply's authoritative-answer flag was set, and whether the
// RRset's name matches the question (CNAMEs whose owner differs from the
// question are demoted)."
func deriveTrust(section Section, aa bool, nameMatchesQuestion bool) TrustLevel {
	switch section {
	case SectionAdditional:
		if aa {
			return TrustAdditionalAA
		}
		return TrustAdditionalNoAA
	case SectionAuthority:
		if aa {
			return TrustAuthorityAA
		}
		return TrustAuthorityNoAA
	case SectionAnswer:
		if !aa {
			return TrustAnswerNoAA
		}
		if !nameMatchesQuestion {
			return TrustAnswerNonAuthAA
		}
		return TrustAnswerAA
	default:
		return TrustAdditionalNoAA
	}
}

// supersedes reports whether an incoming rrset at trust level `incoming`
// should replace one already cached at trust level `cached`, per spec.md
// §4.1: "replaces only when the new trust level ≥ the existing one".
func (incoming TrustLevel) supersedes(cached TrustLevel) bool {
	return incoming >= cached
}
