package notify

import (
	"fmt"

	"github.com/DurbeKK/maid-tg-bot/internal/model"
)

func Escalation(initiator, queueName, reason string) string {
	return fmt.Sprintf("Hey, turns out %s can't do the chore in %s queue today and they provided the following reason:\n\n%s\n\n"+
		"Who can do it today instead? If you can't, just ignore this message.", initiator, queueName, reason)
}

// SubstituteAction is the "I can do it." button attached to an escalation.
func SubstituteAction(teamID, queueName string) *model.CallToAction {
	return &model.CallToAction{
		Label:     "I can do it.",
		Event:     EventSubstitutionAttempt,
		TeamID:    teamID,
		QueueName: queueName,
	}
}

func Swapped(substitute, initiator, queueName string) string {
	return fmt.Sprintf("Yaaay, thank you, %s! You have swapped places with %s. "+
		"%s will now do the chore when it's your turn.\nYou can check out the new order in the %s queue.",
		substitute, initiator, initiator, queueName)
}

func Skipped(queueName, holder string) string {
	return fmt.Sprintf("Well, since no one has replied 'I can do it', I will assume that the chore in %s queue is incomplete "+
		"and skip it for today. It is still %s's turn to do the chore.", queueName, holder)
}

func ReasonPrompt() string {
	return "Can you please type out the reason why you can't complete the chore today?\n" +
		"I will send it to your group chat and we'll try to work it out there."
}

func NoChannel() string {
	return "Looks like you don't have a group chat.\nPlease create a group (if you don't already have one) and add me there, " +
		"so that we can solve this problem. Once I'm added to the group, send me the reason again."
}

func ReasonAccepted() string {
	return "Thank you. Let's try and work this out in your group chat."
}
