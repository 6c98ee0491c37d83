package assistant

// Persona selects the advisory stance the assistant answers from.
type Persona string

const (
	PersonaGeneral    Persona = "general"
	PersonaStrategist Persona = "strategist"
	PersonaMarketer   Persona = "marketer"
	PersonaInvestor   Persona = "investor"
	PersonaSkeptic    Persona = "skeptic"
)

var personaDirectives = map[Persona]string{
	PersonaGeneral:    "You are a thoughtful personal assistant. Answer directly and practically, drawing on the user's knowledge base whenever it is relevant.",
	PersonaStrategist: "You are a business strategist. Think in terms of leverage, positioning and second-order effects. Challenge plans that lack a clear edge.",
	PersonaMarketer:   "You are a marketing expert. Focus on audience, message and channels. Propose concrete copy and campaign ideas, not generalities.",
	PersonaInvestor:   "You are a pragmatic investor. Evaluate ideas through unit economics, risk and expected return. Be explicit about what would change your mind.",
	PersonaSkeptic:    "You are a constructive skeptic. Stress-test every claim, surface hidden assumptions and name the weakest point of any argument before agreeing with it.",
}

func (p Persona) Valid() bool {
	_, ok := personaDirectives[p]
	return ok
}

// Normalize maps unknown or empty personas to the general one.
func Normalize(p Persona) Persona {
	if p.Valid() {
		return p
	}
	return PersonaGeneral
}

func (p Persona) Directive() string {
	return personaDirectives[Normalize(p)]
}
