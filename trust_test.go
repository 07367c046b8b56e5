package resolver

import "testing"

func TestDeriveTrust_Ordering(t *testing.T) {
	for _, tc := range []struct {
		name    string
		section Section
		aa      bool
		match   bool
		want    TrustLevel
	}{
		{"additional, no AA", SectionAdditional, false, true, TrustAdditionalNoAA},
		{"additional, AA", SectionAdditional, true, true, TrustAdditionalAA},
		{"authority, no AA", SectionAuthority, false, true, TrustAuthorityNoAA},
		{"authority, AA", SectionAuthority, true, true, TrustAuthorityAA},
		{"answer, no AA", SectionAnswer, false, true, TrustAnswerNoAA},
		{"answer, AA, name mismatch", SectionAnswer, true, false, TrustAnswerNonAuthAA},
		{"answer, AA, name match", SectionAnswer, true, true, TrustAnswerAA},
	} {
		if got := deriveTrust(tc.section, tc.aa, tc.match); got != tc.want {
			t.Errorf("%s: deriveTrust() = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestTrustLevel_Supersedes(t *testing.T) {
	if !TrustPrimaryNonGlue.supersedes(TrustAdditionalNoAA) {
		t.Error("expected a higher trust level to supersede a lower one")
	}
	if TrustAdditionalNoAA.supersedes(TrustPrimaryNonGlue) {
		t.Error("expected a lower trust level not to supersede a higher one")
	}
	if !TrustAnswerAA.supersedes(TrustAnswerAA) {
		t.Error("expected an equal trust level to supersede (>=)")
	}
}
